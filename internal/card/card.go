// Package card lays out a Reading as grouped metric cards and renders them
// with lipgloss: fixed-precision values, unit labels and an AQI band scale.
package card

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/airdash/internal/aqi"
	"github.com/luki/airdash/internal/reading"
)

// Metric is one value shown on a card.
type Metric struct {
	Label     string
	Value     float64
	Unit      string
	Precision int
}

// Formatted returns the value at the metric's fixed precision.
func (m Metric) Formatted() string {
	return fmt.Sprintf("%.*f", m.Precision, m.Value)
}

// Group is a titled card of related metrics.
type Group struct {
	Title   string
	Metrics []Metric
}

// Groups splits r into the particulate, environment and gas sensor cards.
func Groups(r reading.Reading) []Group {
	return []Group{
		{Title: "Particulates", Metrics: []Metric{
			{"PM1.0", r.PM1, "µg/m³", 1},
			{"PM2.5", r.PM25, "µg/m³", 1},
			{"PM10", r.PM10, "µg/m³", 1},
		}},
		{Title: "Environment", Metrics: []Metric{
			{"Temperature", r.Temp, "°C", 1},
			{"Humidity", r.Humidity, "%", 1},
			{"Pressure", r.Pressure, "hPa", 1},
		}},
		{Title: "Gas sensors", Metrics: []Metric{
			{"MQ", r.MQ, "raw", 0},
			{"Gas", r.PPM, "ppm", 2},
		}},
	}
}

var (
	colorBorder = lipgloss.Color("62")
	colorTitle  = lipgloss.Color("147")
	colorLabel  = lipgloss.Color("252")
	colorValue  = lipgloss.Color("255")
	colorDim    = lipgloss.Color("240")
)

// scaleMax is the right edge of the AQI scale bar.
const scaleMax = 300.0

// RenderGroup renders one card of the given outer width.
func RenderGroup(g Group, width int) string {
	labelW := 12
	valueW := 9

	rows := []string{
		lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Render(g.Title),
	}
	for _, m := range g.Metrics {
		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Width(labelW).
			Render(m.Label)
		value := lipgloss.NewStyle().
			Foreground(colorValue).
			Bold(true).
			Width(valueW).
			Align(lipgloss.Right).
			Render(m.Formatted())
		unit := lipgloss.NewStyle().Foreground(colorDim).Render(" " + m.Unit)
		rows = append(rows, label+value+unit)
	}

	return box(colorBorder, width).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// RenderAQI renders the air quality card: the value coloured by band, the
// category, the device's own label when it was not numeric, and a scale.
func RenderAQI(r reading.Reading, width int) string {
	band := aqi.Classify(r.AQIValue)

	value := lipgloss.NewStyle().
		Foreground(band.Color).
		Bold(true).
		Render(fmt.Sprintf("%.0f", r.AQIValue))
	category := lipgloss.NewStyle().
		Foreground(band.Color).
		Render(band.Category)

	head := lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Render("Air Quality Index")
	line := value + "  " + category
	if label, ok := r.AQILabel(); ok {
		line += lipgloss.NewStyle().Foreground(colorDim).Render("  (" + label + ")")
	}

	scaleW := width - 6
	if scaleW < 10 {
		scaleW = 10
	}

	content := lipgloss.JoinVertical(lipgloss.Left, head, line, RenderScale(r.AQIValue, scaleW))
	return box(band.Color, width).Render(content)
}

// RenderScale draws the AQI bands across width cells with a marker at v.
func RenderScale(v float64, width int) string {
	if width <= 0 {
		return ""
	}

	pos := int(float64(width-1) * v / scaleMax)
	if pos < 0 {
		pos = 0
	}
	if pos >= width {
		pos = width - 1
	}

	var sb strings.Builder
	for i := 0; i < width; i++ {
		cellValue := scaleMax * float64(i) / float64(width)
		band := aqi.Classify(cellValue)
		if i == pos {
			sb.WriteString(lipgloss.NewStyle().Foreground(band.Color).Bold(true).Render("◆"))
			continue
		}
		sb.WriteString(lipgloss.NewStyle().Foreground(band.Color).Render("─"))
	}
	return sb.String()
}

func box(border lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width)
}
