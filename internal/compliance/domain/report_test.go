package compliance

import (
	"testing"
)

func TestComputeStates(t *testing.T) {
	today := ts("2026-03-02T12:00:00Z")

	row := StatusRow{InstrumentID: 1, Code: "INST-01", PeriodicityDays: 365}
	status := Compute(row, today)
	if status.State != StateAvailable {
		t.Fatalf("got state %q want %q", status.State, StateAvailable)
	}
	if status.CalibrationStatus != CalibrationNeverAnalyzed {
		t.Fatalf("got %q want %q", status.CalibrationStatus, CalibrationNeverAnalyzed)
	}
	if status.ValidUntil != nil {
		t.Fatal("expected nil valid until")
	}

	row.OpenCustody = true
	if got := Compute(row, today).State; got != StateWithEmployee {
		t.Fatalf("got state %q want %q", got, StateWithEmployee)
	}

	// An open shipment wins over a stale open custody flag.
	row.OpenShipment = true
	if got := Compute(row, today).State; got != StateAtLab {
		t.Fatalf("got state %q want %q", got, StateAtLab)
	}
}

func TestComputePendingAnalysisFlip(t *testing.T) {
	today := ts("2026-03-02T12:00:00Z")
	row := StatusRow{InstrumentID: 1, TotalActivePoints: 3, AnalyzedPoints: 2}

	status := Compute(row, today)
	if !status.PendingAnalysis {
		t.Fatal("expected pending analysis with 2 of 3 points analyzed")
	}
	if status.PendingPoints != 1 {
		t.Fatalf("got %d pending points want 1", status.PendingPoints)
	}

	row.AnalyzedPoints = 3
	status = Compute(row, today)
	if status.PendingAnalysis {
		t.Fatal("expected analysis complete with 3 of 3 points analyzed")
	}
	if status.PendingPoints != 0 {
		t.Fatalf("got %d pending points want 0", status.PendingPoints)
	}

	// No active points means trivially analyzed.
	row = StatusRow{InstrumentID: 2}
	if Compute(row, today).PendingAnalysis {
		t.Fatal("instrument without points must not be pending")
	}
}

func TestComputeValidityWindow(t *testing.T) {
	received := ts("2024-01-20T10:00:00Z")
	row := StatusRow{InstrumentID: 1, PeriodicityDays: 365, LastReceiveAt: &received}

	status := Compute(row, ts("2024-06-01T00:00:00Z"))
	if status.CalibrationStatus != CalibrationOnTime {
		t.Fatalf("got %q want %q", status.CalibrationStatus, CalibrationOnTime)
	}
	want := received.AddDate(0, 0, 365)
	if status.ValidUntil == nil || !status.ValidUntil.Equal(want) {
		t.Fatalf("got valid until %v want %v", status.ValidUntil, want)
	}

	status = Compute(row, want.AddDate(0, 0, 1))
	if status.CalibrationStatus != CalibrationOverdue {
		t.Fatalf("got %q want %q", status.CalibrationStatus, CalibrationOverdue)
	}
}

func TestAggregateCountsControlledOnly(t *testing.T) {
	received := ts("2020-01-01T00:00:00Z")
	statuses := []InstrumentStatus{
		{Controlled: true, State: StateWithEmployee, CalibrationStatus: CalibrationOnTime},
		{Controlled: true, State: StateAtLab, CalibrationStatus: CalibrationNeverAnalyzed, PendingPoints: 2, PendingAnalysis: true},
		{Controlled: true, State: StateAvailable, CalibrationStatus: CalibrationOverdue, ValidUntil: &received, PendingPoints: 1, PendingAnalysis: true},
		{Controlled: false, State: StateWithEmployee, CalibrationStatus: CalibrationOverdue, PendingPoints: 5},
	}

	counts := Aggregate(statuses)
	if counts.TotalControlled != 3 {
		t.Fatalf("got %d controlled want 3", counts.TotalControlled)
	}
	if counts.InOperation != 1 || counts.InCalibration != 1 {
		t.Fatalf("got in_operation=%d in_calibration=%d want 1/1", counts.InOperation, counts.InCalibration)
	}
	if counts.PendingPoints != 3 {
		t.Fatalf("got %d pending points want 3", counts.PendingPoints)
	}
	if counts.Overdue != 1 || counts.NeverAnalyzed != 1 {
		t.Fatalf("got overdue=%d never=%d want 1/1", counts.Overdue, counts.NeverAnalyzed)
	}
}
