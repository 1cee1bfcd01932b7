package models

import (
	"errors"
	"fmt"
)

// ErrUnknownLabel is returned when a label string is outside the enumeration
var ErrUnknownLabel = errors.New("unknown driving event label")

// Label tags a sample with the driving event the operator is signalling
type Label string

// Driving event labels accepted by the training service
const (
	LabelNormal           Label = "normal"
	LabelHardBraking      Label = "hard_braking"
	LabelHardAcceleration Label = "hard_acceleration"
	LabelHardTurning      Label = "hard_turning"
)

// Labels lists every valid label in display order
var Labels = []Label{LabelNormal, LabelHardBraking, LabelHardAcceleration, LabelHardTurning}

// ParseLabel converts the wire form of a label
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
	}
	return l, nil
}

// Valid reports whether l is one of the known labels
func (l Label) Valid() bool {
	switch l {
	case LabelNormal, LabelHardBraking, LabelHardAcceleration, LabelHardTurning:
		return true
	}
	return false
}

// DisplayName is the operator-facing name of the label
func (l Label) DisplayName() string {
	switch l {
	case LabelHardBraking:
		return "Hard Braking"
	case LabelHardAcceleration:
		return "Hard Acceleration"
	case LabelHardTurning:
		return "Hard Turning"
	default:
		return "Normal Driving"
	}
}

func (l Label) String() string {
	return string(l)
}
