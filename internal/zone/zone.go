// Package zone classifies incoming text lines into server zones.
package zone

import "strings"

type Zone int

const (
	None Zone = iota
	Lobby
	Survival
)

func (z Zone) String() string {
	switch z {
	case Lobby:
		return "lobby"
	case Survival:
		return "survival"
	default:
		return "unknown"
	}
}

type Markers struct {
	Lobby     string `yaml:"lobby"`
	Survival  string `yaml:"survival"`
	Continued string `yaml:"continued"`
}

var DefaultMarkers = Markers{
	Lobby:     "Welcome to PINOYCRAFT",
	Survival:  "[mcMMO] Overhaul Era",
	Continued: "has been continued.",
}

// Detector is stateless; the agent keeps the current zone.
type Detector struct {
	markers Markers
}

func NewDetector(m Markers) Detector {
	if m.Lobby == "" {
		m.Lobby = DefaultMarkers.Lobby
	}
	if m.Survival == "" {
		m.Survival = DefaultMarkers.Survival
	}
	if m.Continued == "" {
		m.Continued = DefaultMarkers.Continued
	}
	return Detector{markers: m}
}

// Classify returns the zone whose marker appears in line. The lobby marker
// wins when both appear.
func (d Detector) Classify(line string) Zone {
	switch {
	case strings.Contains(line, d.markers.Lobby):
		return Lobby
	case strings.Contains(line, d.markers.Survival):
		return Survival
	default:
		return None
	}
}

// Continued reports whether line announces a resumed session, in which
// case the server does not expect a login command.
func (d Detector) Continued(line string) bool {
	return strings.Contains(line, d.markers.Continued)
}
