package custody

import (
	"context"
	"time"
)

// AssignParams opens a custody interval for an employee.
type AssignParams struct {
	InstrumentID int64
	EmployeeID   int64
	StartAt      time.Time
	Notes        string
}

// ReturnParams closes the custody interval held by an employee.
type ReturnParams struct {
	InstrumentID int64
	EmployeeID   int64
	ReturnAt     time.Time
	Notes        string
}

// ShipParams records a shipment to an external laboratory.
type ShipParams struct {
	InstrumentID int64
	LaboratoryID *int64
	LabName      string
	SentAt       time.Time
	Notes        string
}

// ReceiveParams records a lab return and its certificate.
type ReceiveParams struct {
	InstrumentID    int64
	LaboratoryID    *int64
	LabName         string
	CertificateLink string
	ReceivedAt      time.Time
	RegisteredAt    time.Time
	ReceiverID      *int64
	Notes           string
}

// CustodyFilter selects custody records for listing.
type CustodyFilter struct {
	// Status filters by interval state: "open", "closed" or "" for all.
	Status  string
	Search  string
	Page    int
	PerPage int
}

// Ledger is the append-only custody/status store. Each mutation executes as
// one atomic transaction: validation, closing the previous open records and
// opening the new ones are never observably split.
type Ledger interface {
	Assign(ctx context.Context, params AssignParams) (*CustodyRecord, *StatusEvent, error)
	Return(ctx context.Context, params ReturnParams) (*CustodyRecord, *StatusEvent, error)
	Ship(ctx context.Context, params ShipParams) (*StatusEvent, error)
	Receive(ctx context.Context, params ReceiveParams) (*StatusEvent, *CalibrationCertificate, error)

	// LatestCertificate returns the most recent certificate of any event of
	// the instrument, or nil when none exists.
	LatestCertificate(ctx context.Context, instrumentID int64) (*CalibrationCertificate, error)
	// ListCustody returns a custody page plus the unpaged total.
	ListCustody(ctx context.Context, filter CustodyFilter) ([]CustodyRecord, int, error)
}
