package custody

import "time"

// EventKind enumerates lifecycle transitions recorded in the status log.
type EventKind string

const (
	EventDelivered       EventKind = "delivered"
	EventReturned        EventKind = "returned"
	EventSentToLab       EventKind = "sent_to_lab"
	EventReceivedFromLab EventKind = "received_from_lab"
)

// DefaultLabName is used when no laboratory can be resolved for a shipment
// or receipt.
const DefaultLabName = "externo"

// StatusEvent is an immutable entry in the instrument lifecycle log. The
// current physical state of an instrument is derived from the log, never
// stored. At most one event per instrument has an unset return time; every
// new event closes the previous open one.
type StatusEvent struct {
	ID           int64
	InstrumentID int64
	EmployeeID   *int64
	LaboratoryID *int64
	Kind         EventKind
	LabName      string
	EnteredAt    time.Time
	ReturnedAt   *time.Time
	ReceivedAt   *time.Time
	Notes        string
	CreatedAt    time.Time

	// Joined display field, populated by list queries.
	EmployeeName string
}

// Open reports whether the event is still open (no return stamped).
func (e StatusEvent) Open() bool {
	return e.ReturnedAt == nil
}

// OpenShipment reports whether the event is a lab shipment still awaiting
// its receipt.
func (e StatusEvent) OpenShipment() bool {
	return e.Kind == EventSentToLab && e.ReceivedAt == nil
}

// DisplayDate returns the single best-effort date for history feeds:
// receipt time, return time or entry time, whichever is latest and present.
func (e StatusEvent) DisplayDate() time.Time {
	date := e.EnteredAt
	if e.ReceivedAt != nil && e.ReceivedAt.After(date) {
		date = *e.ReceivedAt
	}
	if e.ReturnedAt != nil && e.ReturnedAt.After(date) {
		date = *e.ReturnedAt
	}
	return date
}
