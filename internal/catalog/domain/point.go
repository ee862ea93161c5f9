package catalog

import (
	"errors"
	"time"
)

// CalibrationPoint is one measurement value or range an instrument is
// calibrated against. (instrument, sequence) is unique.
type CalibrationPoint struct {
	ID             int64
	InstrumentID   int64
	Sequence       int
	Description    string
	Nominal        *float64
	Minimum        *float64
	Maximum        *float64
	Unit           string
	TolerancePlus  *float64
	ToleranceMinus *float64
	Notes          string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks calibration point invariants.
func (p CalibrationPoint) Validate() error {
	if p.InstrumentID == 0 {
		return errors.New("catalog: point without instrument")
	}
	if p.Sequence <= 0 {
		return errors.New("catalog: point sequence must be positive")
	}
	if p.Unit == "" {
		return errors.New("catalog: point without unit")
	}
	if p.Nominal == nil && (p.Minimum == nil || p.Maximum == nil) {
		return errors.New("catalog: point needs a nominal value or a min/max range")
	}
	if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
		return errors.New("catalog: point range minimum above maximum")
	}
	return nil
}

// EffectiveNominal returns the nominal value, falling back to the range
// midpoint when only min/max are set.
func (p CalibrationPoint) EffectiveNominal() *float64 {
	if p.Nominal != nil {
		return p.Nominal
	}
	if p.Minimum != nil && p.Maximum != nil {
		mid := (*p.Minimum + *p.Maximum) / 2
		return &mid
	}
	return nil
}
