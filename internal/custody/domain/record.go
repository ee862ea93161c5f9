package custody

import "time"

// CustodyRecord is one possession interval of an instrument by an employee.
// At most one open record (EndAt nil, Active true) exists per instrument.
type CustodyRecord struct {
	ID           int64
	InstrumentID int64
	EmployeeID   int64
	StartAt      time.Time
	EndAt        *time.Time
	Notes        string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Joined display fields, populated by list queries.
	EmployeeName   string
	EmployeeBadge  string
	InstrumentCode string
	InstrumentDesc string
}

// Open reports whether the custody interval is still open.
func (r CustodyRecord) Open() bool {
	return r.EndAt == nil && r.Active
}
