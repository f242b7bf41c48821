package format

import (
	"github.com/sirupsen/logrus"
)

// Direction names the side of a stage on which caps were proposed.
type Direction uint8

const (
	// DirectionSink is the raw input side, facing upstream.
	DirectionSink Direction = iota
	// DirectionSrc is the processed output side, facing downstream.
	DirectionSrc
)

func (d Direction) String() string {
	switch d {
	case DirectionSink:
		return "sink"
	case DirectionSrc:
		return "src"
	default:
		return "unknown"
	}
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionSink {
		return DirectionSrc
	}
	return DirectionSink
}

// CanonicalFormat is the packed format sink caps are narrowed to.
const CanonicalFormat = PixelFormatBGRx

// Negotiator computes acceptable caps per direction.
type Negotiator struct {
	// Strict limits the formats offered on the src side to those listed in
	// Outputs, so negotiation never settles on a format the transform would
	// reject later.
	Strict bool

	// Outputs lists the formats the transform can write. Only consulted when
	// Strict is set.
	Outputs []PixelFormat
}

// NewNegotiator returns a Negotiator in parity mode.
func NewNegotiator() *Negotiator {
	return &Negotiator{Outputs: []PixelFormat{CanonicalFormat}}
}

// ProposeAcceptable returns the caps the side opposite dir can carry when dir
// carries caps. With a non-nil filter the result is the ordered intersection
// with the filter. An empty result means no acceptable format.
func (n *Negotiator) ProposeAcceptable(dir Direction, caps, filter Set) Set {
	var other Set
	switch dir {
	case DirectionSrc:
		for _, st := range caps {
			other = other.appendUnique(st.WithFormat(CanonicalFormat))
		}
	default:
		for _, st := range caps {
			other = n.appendOutput(other, st.WithFormat(PixelFormatGray8))
		}
		for _, st := range caps {
			other = n.appendOutput(other, st)
		}
	}

	result := other
	if filter != nil {
		result = IntersectFirst(filter, other)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Negotiator.ProposeAcceptable",
		"direction": dir.String(),
		"caps":      caps.String(),
		"computed":  other.String(),
		"filtered":  filter != nil,
		"result":    result.String(),
	}).Debug("Transformed caps")

	return result
}

func (n *Negotiator) appendOutput(s Set, st Structure) Set {
	if n.Strict && !containsFormat(n.Outputs, st.Format) {
		return s
	}
	return s.appendUnique(st)
}
