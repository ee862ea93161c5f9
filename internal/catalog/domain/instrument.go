package catalog

import (
	"errors"
	"time"
)

// InstrumentStatus is the lifecycle status of an instrument record.
type InstrumentStatus string

const (
	StatusActive      InstrumentStatus = "active"
	StatusInactive    InstrumentStatus = "inactive"
	StatusMaintenance InstrumentStatus = "maintenance"
	StatusDiscarded   InstrumentStatus = "discarded"
)

// NormalizeStatus validates and normalizes an instrument status string.
func NormalizeStatus(value string) (InstrumentStatus, bool) {
	switch InstrumentStatus(value) {
	case StatusActive, StatusInactive, StatusMaintenance, StatusDiscarded:
		return InstrumentStatus(value), true
	default:
		return "", false
	}
}

// Instrument is a physical measuring instrument under calibration control.
type Instrument struct {
	ID              int64
	Code            string
	Description     string
	TypeID          *int64
	TypeName        string
	Controlled      bool
	Manufacturer    string
	Model           string
	Status          InstrumentStatus
	Notes           string
	AcquiredAt      *time.Time
	PeriodicityDays int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InstrumentFilter selects instruments for listing.
type InstrumentFilter struct {
	Status     InstrumentStatus
	TypeID     *int64
	Controlled *bool
	Search     string
	Page       int
	PerPage    int
}

// Validate checks instrument invariants.
func (i Instrument) Validate() error {
	if i.Code == "" {
		return errors.New("catalog: empty instrument code")
	}
	if _, ok := NormalizeStatus(string(i.Status)); !ok {
		return errors.New("catalog: invalid instrument status")
	}
	if i.PeriodicityDays <= 0 {
		return errors.New("catalog: calibration periodicity must be positive")
	}
	return nil
}
