package compliance

import "time"

// StatusRow carries the raw per-instrument facts the storage layer gathers
// in one pass: point counters, latest shipment/receipt stamps and open
// interval flags.
type StatusRow struct {
	InstrumentID      int64
	Code              string
	Description       string
	TypeName          string
	Controlled        bool
	InstrumentStatus  string
	PeriodicityDays   int
	TotalActivePoints int
	// AnalyzedPoints counts distinct active points with an analysis at or
	// after the latest shipment (any analysis when never shipped).
	AnalyzedPoints  int
	LastShipAt      *time.Time
	LastReceiveAt   *time.Time
	OpenCustody     bool
	OpenShipment    bool
	HolderName      string
	LabName         string
	CertificateLink string
}

// InstrumentStatus is the derived compliance view of one instrument.
type InstrumentStatus struct {
	InstrumentID      int64             `json:"instrument_id"`
	Code              string            `json:"code"`
	Description       string            `json:"description"`
	TypeName          string            `json:"type_name,omitempty"`
	Controlled        bool              `json:"controlled"`
	State             PhysicalState     `json:"state"`
	CalibrationStatus CalibrationStatus `json:"calibration_status"`
	ValidUntil        *time.Time        `json:"valid_until,omitempty"`
	PendingAnalysis   bool              `json:"pending_analysis"`
	PendingPoints     int               `json:"pending_points"`
	HolderName        string            `json:"holder_name,omitempty"`
	LabName           string            `json:"lab_name,omitempty"`
	CertificateLink   string            `json:"certificate_link,omitempty"`
	LastReceiveAt     *time.Time        `json:"last_receive_at,omitempty"`
}

// Compute turns raw storage facts into the derived compliance view.
func Compute(row StatusRow, today time.Time) InstrumentStatus {
	state := StateAvailable
	switch {
	case row.OpenShipment:
		state = StateAtLab
	case row.OpenCustody:
		state = StateWithEmployee
	}

	until := ValidUntil(row.LastReceiveAt, row.PeriodicityDays)
	pending := row.TotalActivePoints - row.AnalyzedPoints
	if pending < 0 {
		pending = 0
	}
	if row.TotalActivePoints == 0 {
		pending = 0
	}

	return InstrumentStatus{
		InstrumentID:      row.InstrumentID,
		Code:              row.Code,
		Description:       row.Description,
		TypeName:          row.TypeName,
		Controlled:        row.Controlled,
		State:             state,
		CalibrationStatus: StatusFor(until, today),
		ValidUntil:        until,
		PendingAnalysis:   PendingAnalysis(row.TotalActivePoints, row.AnalyzedPoints),
		PendingPoints:     pending,
		HolderName:        row.HolderName,
		LabName:           row.LabName,
		CertificateLink:   row.CertificateLink,
		LastReceiveAt:     row.LastReceiveAt,
	}
}

// DashboardCounts aggregates controlled, active instruments.
type DashboardCounts struct {
	InOperation     int `json:"in_operation"`
	InCalibration   int `json:"in_calibration"`
	PendingPoints   int `json:"pending_points"`
	Overdue         int `json:"overdue"`
	NeverAnalyzed   int `json:"never_analyzed"`
	TotalControlled int `json:"total_controlled"`
}

// Aggregate folds derived statuses into dashboard counters. Only controlled
// instruments participate.
func Aggregate(statuses []InstrumentStatus) DashboardCounts {
	var counts DashboardCounts
	for _, status := range statuses {
		if !status.Controlled {
			continue
		}
		counts.TotalControlled++
		switch status.State {
		case StateWithEmployee:
			counts.InOperation++
		case StateAtLab:
			counts.InCalibration++
		}
		counts.PendingPoints += status.PendingPoints
		switch status.CalibrationStatus {
		case CalibrationOverdue:
			counts.Overdue++
		case CalibrationNeverAnalyzed:
			counts.NeverAnalyzed++
		}
	}
	return counts
}
