// Package model holds the persisted side of the face classifier: threshold
// policy, label metadata and the integrity rules for loading both files.
package model

import "github.com/kozaktomas/facecam/internal/constants"

// NotRecognized is the name reported for a face whose distance is at or
// above the confidence threshold.
const NotRecognized = "Not recognized"

// Band is the three-way classification used when rendering the stream.
type Band int

const (
	BandUnknown Band = iota
	BandMaybe
	BandKnown
)

func (b Band) String() string {
	switch b {
	case BandKnown:
		return "known"
	case BandMaybe:
		return "maybe"
	default:
		return "unknown"
	}
}

// MarshalText encodes the band by name.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Thresholds are LBPH distance cutoffs. Lower distance means a better match.
//
// A distance below Unknown is a confident match, a distance in
// [Unknown, Confidence) is a probable match, and anything at or above
// Confidence is not recognized. Unknown never exceeds Confidence.
type Thresholds struct {
	Confidence float64 `json:"confidence_threshold"`
	Unknown    float64 `json:"unknown_threshold"`
}

// DefaultThresholds returns the stock 100/80 cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Confidence: constants.DefaultConfidenceThreshold,
		Unknown:    constants.DefaultUnknownThreshold,
	}
}

// Normalize replaces non-positive values with defaults and clamps Unknown
// down to Confidence. The second return value reports whether Unknown was clamped.
func (t Thresholds) Normalize() (Thresholds, bool) {
	def := DefaultThresholds()
	if t.Confidence <= 0 {
		t.Confidence = def.Confidence
	}
	if t.Unknown <= 0 {
		t.Unknown = min(def.Unknown, t.Confidence)
	}
	if t.Unknown > t.Confidence {
		t.Unknown = t.Confidence
		return t, true
	}
	return t, false
}

// Known reports whether a distance identifies the predicted subject.
func (t Thresholds) Known(confidence float64) bool {
	return confidence < t.Confidence
}

// Band splits a distance into known, maybe and unknown.
func (t Thresholds) Band(confidence float64) Band {
	switch {
	case confidence >= t.Confidence:
		return BandUnknown
	case confidence < t.Unknown:
		return BandKnown
	default:
		return BandMaybe
	}
}
