package compliance

import (
	"testing"
	"time"

	custody "metrology-cloud/internal/custody/domain"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(value string) *time.Time {
	t := ts(value)
	return &t
}

func TestDeriveState(t *testing.T) {
	cases := []struct {
		name   string
		latest *custody.StatusEvent
		want   PhysicalState
	}{
		{"no history", nil, StateAvailable},
		{
			"open delivery",
			&custody.StatusEvent{Kind: custody.EventDelivered, EnteredAt: ts("2026-01-02T08:00:00Z")},
			StateWithEmployee,
		},
		{
			"closed delivery",
			&custody.StatusEvent{Kind: custody.EventDelivered, EnteredAt: ts("2026-01-02T08:00:00Z"), ReturnedAt: tsp("2026-01-03T08:00:00Z")},
			StateAvailable,
		},
		{
			"open shipment",
			&custody.StatusEvent{Kind: custody.EventSentToLab, EnteredAt: ts("2026-01-02T08:00:00Z")},
			StateAtLab,
		},
		{
			"shipment with return but no receipt",
			&custody.StatusEvent{Kind: custody.EventSentToLab, EnteredAt: ts("2026-01-02T08:00:00Z"), ReturnedAt: tsp("2026-01-03T08:00:00Z")},
			StateAtLab,
		},
		{
			"received shipment",
			&custody.StatusEvent{Kind: custody.EventSentToLab, EnteredAt: ts("2026-01-02T08:00:00Z"), ReturnedAt: tsp("2026-01-10T08:00:00Z"), ReceivedAt: tsp("2026-01-10T08:00:00Z")},
			StateAvailable,
		},
		{
			"receipt event",
			&custody.StatusEvent{Kind: custody.EventReceivedFromLab, EnteredAt: ts("2026-01-10T08:00:00Z")},
			StateAvailable,
		},
		{
			"returned event",
			&custody.StatusEvent{Kind: custody.EventReturned, EnteredAt: ts("2026-01-10T08:00:00Z")},
			StateAvailable,
		},
	}
	for _, tc := range cases {
		if got := DeriveState(tc.latest); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestValidUntil(t *testing.T) {
	if got := ValidUntil(nil, 30); got != nil {
		t.Fatalf("expected nil for missing receipt, got %v", got)
	}
	got := ValidUntil(tsp("2026-03-01T14:30:00Z"), 30)
	if got == nil {
		t.Fatal("expected a validity window")
	}
	if want := ts("2026-03-31T14:30:00Z"); !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestStatusFor(t *testing.T) {
	received := tsp("2026-03-01T14:30:00Z")
	until := ValidUntil(received, 30) // 2026-03-31

	cases := []struct {
		name  string
		until *time.Time
		today time.Time
		want  CalibrationStatus
	}{
		{"never analyzed", nil, ts("2026-04-01T00:00:00Z"), CalibrationNeverAnalyzed},
		{"well within window", until, ts("2026-03-15T10:00:00Z"), CalibrationOnTime},
		{"expires today is still on time", until, ts("2026-03-31T23:59:00Z"), CalibrationOnTime},
		{"day after expiry", until, ts("2026-04-01T00:01:00Z"), CalibrationOverdue},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.until, tc.today); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestStatusForIgnoresTimeOfDay(t *testing.T) {
	// Expiry earlier in the day than "now" must not flip the status.
	until := tsp("2026-03-31T06:00:00Z")
	if got := StatusFor(until, ts("2026-03-31T22:00:00Z")); got != CalibrationOnTime {
		t.Fatalf("got %q want %q", got, CalibrationOnTime)
	}
}

func TestPendingAnalysis(t *testing.T) {
	cases := []struct {
		name     string
		total    int
		analyzed int
		want     bool
	}{
		{"no active points", 0, 0, false},
		{"nothing analyzed", 3, 0, true},
		{"partially analyzed", 3, 2, true},
		{"fully analyzed", 3, 3, false},
	}
	for _, tc := range cases {
		if got := PendingAnalysis(tc.total, tc.analyzed); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
