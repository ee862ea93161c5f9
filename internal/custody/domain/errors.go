package custody

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("custody: not found")
	// ErrInstrumentUnavailable is returned when assigning an instrument that
	// is held by an employee or away at a laboratory.
	ErrInstrumentUnavailable = errors.New("custody: instrument unavailable")
	// ErrNoOpenCustody is returned when returning an instrument nobody holds.
	ErrNoOpenCustody = errors.New("custody: no open custody record")
	// ErrCustodyMismatch is returned when the returning employee is not the
	// current holder.
	ErrCustodyMismatch = errors.New("custody: instrument held by another employee")
	// ErrAlreadyAtLab is returned when shipping an instrument that has an
	// open shipment awaiting receipt.
	ErrAlreadyAtLab = errors.New("custody: instrument already at laboratory")
	// ErrMissingCertificateLink is returned when receiving from a laboratory
	// without a certificate link.
	ErrMissingCertificateLink = errors.New("custody: certificate link required")
	// ErrConflict is returned when a concurrent writer holds the instrument
	// row; safe to retry after re-reading state.
	ErrConflict = errors.New("custody: concurrent modification")
)
