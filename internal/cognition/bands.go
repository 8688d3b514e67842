package cognition

import (
	"errors"
	"fmt"

	"github.com/curbz/cognition/pkg/geometry"
)

// MaxTrackBands is the largest number of track bands an advisory may carry.
const MaxTrackBands = 20

var ErrTooManyBands = errors.New("too many track bands")

// BandType classifies a track band.
type BandType int

const (
	BandNone BandType = iota
	BandFar
	BandMid
	BandNear
	BandRecovery
)

var bandNames = [...]string{"NONE", "FAR", "MID", "NEAR", "RECOVERY"}

func (b BandType) String() string {
	if b < 0 || int(b) >= len(bandNames) {
		return fmt.Sprintf("BandType(%d)", int(b))
	}
	return bandNames[b]
}

func (b BandType) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BandType) UnmarshalText(text []byte) error {
	v, err := parseEnum(string(text), bandNames[:])
	if err != nil {
		return fmt.Errorf("band type: %w", err)
	}
	*b = BandType(v)
	return nil
}

// TrackBand is a closed interval of true tracks in degrees. Min may exceed
// Max when the band wraps through north.
type TrackBand struct {
	Type BandType
	Min  float64
	Max  float64
}

func (b TrackBand) contains(track float64) bool {
	t := geometry.NormalizeHeading(track)
	lo, hi := geometry.NormalizeHeading(b.Min), geometry.NormalizeHeading(b.Max)
	if lo <= hi {
		return t >= lo && t <= hi
	}
	return t >= lo || t <= hi
}

// TrackBands is a bounded sequence of track bands.
type TrackBands []TrackBand

// NewTrackBands builds a band sequence, rejecting more than MaxTrackBands.
func NewTrackBands(bands ...TrackBand) (TrackBands, error) {
	if len(bands) > MaxTrackBands {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyBands, len(bands), MaxTrackBands)
	}
	out := make(TrackBands, len(bands))
	copy(out, bands)
	return out, nil
}

// Validate reports ErrTooManyBands when the sequence exceeds its capacity.
func (t TrackBands) Validate() error {
	if len(t) > MaxTrackBands {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyBands, len(t), MaxTrackBands)
	}
	return nil
}

// Conflicting reports whether track falls in a mid or near band.
func (t TrackBands) Conflicting(track float64) bool {
	for _, b := range t {
		if (b.Type == BandMid || b.Type == BandNear) && b.contains(track) {
			return true
		}
	}
	return false
}
