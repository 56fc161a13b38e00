// Package aqi classifies an Air Quality Index value into a category and the
// colours used to display it.
package aqi

import "github.com/charmbracelet/lipgloss"

// Band is an AQI category with its terminal and web colours.
type Band struct {
	Category string
	Color    lipgloss.Color // ANSI-256, for the terminal dashboard
	Hex      string         // for the web view
}

var (
	Good                  = Band{"Good", lipgloss.Color("78"), "#00e400"}
	Moderate              = Band{"Moderate", lipgloss.Color("220"), "#ffff00"}
	UnhealthyForSensitive = Band{"Unhealthy for Sensitive", lipgloss.Color("208"), "#ff7e00"}
	Unhealthy             = Band{"Unhealthy", lipgloss.Color("196"), "#ff0000"}
	VeryUnhealthy         = Band{"Very Unhealthy", lipgloss.Color("129"), "#8f3f97"}
)

// Bands lists every band from cleanest to worst.
var Bands = []Band{Good, Moderate, UnhealthyForSensitive, Unhealthy, VeryUnhealthy}

// Classify returns the band for v. Upper bounds are inclusive and there is
// no lower clamp, so negative values are Good.
func Classify(v float64) Band {
	switch {
	case v <= 50:
		return Good
	case v <= 100:
		return Moderate
	case v <= 150:
		return UnhealthyForSensitive
	case v <= 200:
		return Unhealthy
	default:
		return VeryUnhealthy
	}
}
