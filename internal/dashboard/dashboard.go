// Package dashboard implements the live air quality TUI. It renders the
// poller's state and never fetches on its own; state arrives as StateMsg.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/airdash/internal/card"
	"github.com/luki/airdash/internal/poller"
)

const clockInterval = 1 * time.Second

// ── Messages ─────────────────────────────────────────────────────────

// StateMsg carries a poller snapshot into the program.
type StateMsg poller.State

type clockMsg time.Time

// ── Model ────────────────────────────────────────────────────────────

// Refresher triggers an out-of-band fetch.
type Refresher interface {
	Refresh()
}

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	state     poller.State
	refresher Refresher
	endpoint  string
	interval  time.Duration
	width     int
	height    int
	scroll    int
	now       time.Time
	startTime time.Time
}

// New creates the dashboard model. initial is shown until the first
// StateMsg arrives.
func New(initial poller.State, r Refresher, endpoint string, interval time.Duration) Model {
	now := time.Now()
	return Model{
		state:     initial,
		refresher: r,
		endpoint:  endpoint,
		interval:  interval,
		now:       now,
		startTime: now,
	}
}

// Program builds a bubbletea program for m and wires p so that every
// poller state change is sent into it.
func Program(m Model, p *poller.Poller, opts ...tea.ProgramOption) *tea.Program {
	prog := tea.NewProgram(m, opts...)
	p.Subscribe(func(s poller.State) {
		prog.Send(StateMsg(s))
	})
	return prog
}

// ── Commands ─────────────────────────────────────────────────────────

func clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return clockCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.refresher != nil {
				m.refresher.Refresh()
			}
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			if m.scroll < m.maxScroll() {
				m.scroll++
			}
		case "home":
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll = min(m.scroll, m.maxScroll())

	case clockMsg:
		m.now = time.Time(msg)
		return m, clockCmd()

	case StateMsg:
		s := poller.State(msg)
		if s.Version <= m.state.Version {
			return m, nil
		}
		m.state = s
		m.scroll = min(m.scroll, m.maxScroll())
	}

	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorLoading  = lipgloss.Color("214")
	colorCrit     = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	lines := m.lines()
	start := min(m.scroll, m.maxScroll())
	end := min(start+m.visibleLines(), len(lines))
	return strings.Join(lines[start:end], "\n")
}

func (m Model) visibleLines() int {
	return max(m.height, 5)
}

// maxScroll is the largest scroll offset that still fills the screen.
func (m Model) maxScroll() int {
	if m.width == 0 {
		return 0
	}
	return max(len(m.lines())-m.visibleLines(), 0)
}

// lines renders the full content before scrolling.
func (m Model) lines() []string {
	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.state.Err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.state.Err))
		sections = append(sections, errBox)
	}

	if !m.state.HasReading {
		msg := "Waiting for sensor data..."
		if m.state.Loading {
			msg = "Loading sensor data..."
		}
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render(msg)
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderCards(contentWidth)...)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	return strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("AIR QUALITY")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string

	if m.state.HasReading {
		dev := lipgloss.NewStyle().
			Foreground(colorLabel).
			Bold(true).
			Render(m.state.Reading.DeviceID)
		statusParts = append(statusParts, dev)
		statusParts = append(statusParts, dimS.Render("updated "+m.lastUpdate()))
	}

	if m.state.Loading {
		statusParts = append(statusParts, lipgloss.NewStyle().
			Foreground(colorLoading).
			Bold(true).
			Render("LOADING"))
	}

	statusParts = append(statusParts, dimS.Render(fmt.Sprintf("up %s", fmtDuration(m.now.Sub(m.startTime)))))

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + filler + right)
}

// lastUpdate formats the reading's own timestamp in local time, falling
// back to when it was applied.
func (m Model) lastUpdate() string {
	t, ok := m.state.Reading.Time()
	if !ok {
		t = m.state.UpdatedAt
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func (m Model) renderCards(totalWidth int) []string {
	groups := card.Groups(m.state.Reading)

	panels := []string{card.RenderAQI(m.state.Reading, totalWidth)}

	// side by side when there is room, stacked otherwise
	cardW := (totalWidth - 2*len(groups)) / len(groups)
	if cardW < 32 {
		for _, g := range groups {
			panels = append(panels, card.RenderGroup(g, totalWidth))
		}
		return panels
	}

	row := make([]string, 0, len(groups))
	for _, g := range groups {
		row = append(row, card.RenderGroup(g, cardW))
	}
	return append(panels, lipgloss.JoinHorizontal(lipgloss.Top, row...))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	labelS := lipgloss.NewStyle().Foreground(colorLabel)

	source := dimS.Render(fmt.Sprintf("%s every %s", m.endpoint, m.interval))

	keys := dimS.Render("q") + labelS.Render(":quit") +
		dimS.Render("  r") + labelS.Render(":refresh") +
		dimS.Render("  j/k") + labelS.Render(":scroll")

	gap := width - lipgloss.Width(source) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(source + filler + keys)
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
