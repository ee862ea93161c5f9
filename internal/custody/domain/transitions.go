package custody

import "strings"

// Transition rules shared by every Ledger implementation. Mutations load the
// current open records inside their transaction, validate with these
// functions, then apply the close-previous/open-new writes atomically.

// CheckAssignable rejects an assignment while the instrument is held or away
// at a laboratory.
func CheckAssignable(openCustody *CustodyRecord, openShipment *StatusEvent) error {
	if openShipment != nil {
		return ErrInstrumentUnavailable
	}
	if openCustody != nil {
		return ErrInstrumentUnavailable
	}
	return nil
}

// CheckReturnable matches the open custody record against the returning
// employee.
func CheckReturnable(openCustody *CustodyRecord, employeeID int64) error {
	if openCustody == nil {
		return ErrNoOpenCustody
	}
	if openCustody.EmployeeID != employeeID {
		return ErrCustodyMismatch
	}
	return nil
}

// CheckShippable rejects a shipment while a previous one is still fully open.
// A receipt-less shipment whose return is already stamped is stale history
// that Ship backfills rather than rejects.
func CheckShippable(openShipment *StatusEvent) error {
	if openShipment != nil && openShipment.ReturnedAt == nil {
		return ErrAlreadyAtLab
	}
	return nil
}

// ResolveLabName picks the laboratory label for a receipt: the explicit
// argument wins, then the matched shipment's stored name, then the default.
func ResolveLabName(explicit string, matchedShipment *StatusEvent) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if matchedShipment != nil && strings.TrimSpace(matchedShipment.LabName) != "" {
		return strings.TrimSpace(matchedShipment.LabName)
	}
	return DefaultLabName
}

// MostRecent picks the later of two events: highest entry time, ties broken
// by highest identifier (insertion order).
func MostRecent(a, b StatusEvent) StatusEvent {
	if b.EnteredAt.After(a.EnteredAt) {
		return b
	}
	if b.EnteredAt.Equal(a.EnteredAt) && b.ID > a.ID {
		return b
	}
	return a
}
