package compliance

import (
	"time"

	custody "metrology-cloud/internal/custody/domain"
)

// PhysicalState is the derived location of an instrument.
type PhysicalState string

const (
	StateAvailable    PhysicalState = "available"
	StateWithEmployee PhysicalState = "with_employee"
	StateAtLab        PhysicalState = "at_lab"
)

// CalibrationStatus positions an instrument against its validity window.
type CalibrationStatus string

const (
	CalibrationOnTime        CalibrationStatus = "on_time"
	CalibrationOverdue       CalibrationStatus = "overdue"
	CalibrationNeverAnalyzed CalibrationStatus = "never_analyzed"
)

// DeriveState reconstructs the physical state from the latest status event.
// Missing history means the instrument is available.
func DeriveState(latest *custody.StatusEvent) PhysicalState {
	if latest == nil {
		return StateAvailable
	}
	if latest.OpenShipment() {
		return StateAtLab
	}
	if latest.Kind == custody.EventDelivered && latest.Open() {
		return StateWithEmployee
	}
	return StateAvailable
}

// ValidUntil computes the end of the validity window from the most recent
// lab receipt. Nil receipt means the instrument was never analyzed.
func ValidUntil(lastReceiveAt *time.Time, periodicityDays int) *time.Time {
	if lastReceiveAt == nil {
		return nil
	}
	until := lastReceiveAt.UTC().AddDate(0, 0, periodicityDays)
	return &until
}

// StatusFor classifies the validity window against today. The window is
// inclusive: an instrument expiring today is still on time.
func StatusFor(validUntil *time.Time, today time.Time) CalibrationStatus {
	if validUntil == nil {
		return CalibrationNeverAnalyzed
	}
	ty, tm, td := today.UTC().Date()
	vy, vm, vd := validUntil.UTC().Date()
	todayDate := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	untilDate := time.Date(vy, vm, vd, 0, 0, 0, 0, time.UTC)
	if untilDate.Before(todayDate) {
		return CalibrationOverdue
	}
	return CalibrationOnTime
}

// PendingAnalysis reports whether active points still await analysis since
// the latest shipment. An instrument with zero active points is trivially
// analyzed.
func PendingAnalysis(totalActivePoints, analyzedSinceShipment int) bool {
	if totalActivePoints == 0 {
		return false
	}
	return analyzedSinceShipment < totalActivePoints
}
