// Package model holds the data shared by the online feedback path and the
// offline calibration path. It carries no signal processing of its own.
package model

import "fmt"

// Phase is the experiment phase. Exactly one value is current at a time.
type Phase int32

// Experiment phases
const (
	PhaseStart Phase = iota
	PhaseReference
	PhaseCue
	PhaseFeedback
	PhaseBreak
	PhaseSleep
)

var phaseNames = [...]string{
	PhaseStart:     "START",
	PhaseReference: "REFERENCE",
	PhaseCue:       "CUE",
	PhaseFeedback:  "FEEDBACK",
	PhaseBreak:     "BREAK",
	PhaseSleep:     "SLEEP",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
	return phaseNames[p]
}

// MarkerKind is the parsed meaning of a marker string.
type MarkerKind int

// Marker kinds
const (
	MarkerUnknown MarkerKind = iota
	MarkerReference
	MarkerCue
	MarkerFeedback
	MarkerEndOfTrial
	MarkerTrialLeft
	MarkerTrialRight
)

// Class label codes written to recordings at the cue position.
const (
	LabelLeft  = 121
	LabelRight = 122
)

// Marker is a single event from the marker stream.
type Marker struct {
	Value string
	Time  float64
}

// Kind parses the marker value. Anything not recognised is MarkerUnknown.
func (m Marker) Kind() MarkerKind {
	return ParseMarker(m.Value)
}

// ParseMarker maps a marker string to its kind.
func ParseMarker(value string) MarkerKind {
	switch value {
	case "Reference":
		return MarkerReference
	case "Cue":
		return MarkerCue
	case "Feedback":
		return MarkerFeedback
	case "End_of_Trial":
		return MarkerEndOfTrial
	case "Start_of_Trial_l":
		return MarkerTrialLeft
	case "Start_of_Trial_r":
		return MarkerTrialRight
	}

	return MarkerUnknown
}

// Label returns the recording class code for trial start markers, or 0.
func (k MarkerKind) Label() int {
	switch k {
	case MarkerTrialLeft:
		return LabelLeft
	case MarkerTrialRight:
		return LabelRight
	}
	return 0
}
