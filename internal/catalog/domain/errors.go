package catalog

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicateCode is returned when an instrument code is already taken.
	ErrDuplicateCode = errors.New("catalog: duplicate instrument code")
	// ErrDuplicateSequence is returned when a point sequence already exists
	// for the instrument.
	ErrDuplicateSequence = errors.New("catalog: duplicate point sequence")
	// ErrInstrumentWithoutPoints is returned when updating an instrument
	// that has no calibration points.
	ErrInstrumentWithoutPoints = errors.New("catalog: instrument must have at least one calibration point")
	// ErrLastActivePoint is returned when removing or deactivating the last
	// active point of an instrument.
	ErrLastActivePoint = errors.New("catalog: cannot remove the last active calibration point")
)
