package application

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	catalog "metrology-cloud/internal/catalog/domain"
	compliance "metrology-cloud/internal/compliance/domain"
	custody "metrology-cloud/internal/custody/domain"
	"metrology-cloud/internal/custody/infrastructure/memory"
)

type fakeDirectory struct {
	instruments  map[int64]catalog.Instrument
	employees    map[int64]catalog.Employee
	laboratories map[int64]catalog.Laboratory
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		instruments:  map[int64]catalog.Instrument{1: {ID: 1, Code: "INST-01", PeriodicityDays: 365, Status: catalog.StatusActive}},
		employees:    map[int64]catalog.Employee{7: {ID: 7, Badge: "E-0007", Name: "Alex"}, 9: {ID: 9, Badge: "E-0009", Name: "Sam"}},
		laboratories: map[int64]catalog.Laboratory{3: {ID: 3, Name: "LabCal Sul"}},
	}
}

func (d *fakeDirectory) GetInstrument(ctx context.Context, id int64) (*catalog.Instrument, error) {
	_ = ctx
	if inst, ok := d.instruments[id]; ok {
		return &inst, nil
	}
	return nil, catalog.ErrNotFound
}

func (d *fakeDirectory) GetEmployee(ctx context.Context, id int64) (*catalog.Employee, error) {
	_ = ctx
	if e, ok := d.employees[id]; ok {
		return &e, nil
	}
	return nil, catalog.ErrNotFound
}

func (d *fakeDirectory) GetLaboratory(ctx context.Context, id int64) (*catalog.Laboratory, error) {
	_ = ctx
	if l, ok := d.laboratories[id]; ok {
		return &l, nil
	}
	return nil, catalog.ErrNotFound
}

type failingSignatureStore struct{}

func (failingSignatureStore) Save(ctx context.Context, custodyRecordID int64, image []byte) (string, error) {
	_ = ctx
	_ = custodyRecordID
	_ = image
	return "", errors.New("disk full")
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *memory.Ledger, *fixedClock) {
	t.Helper()
	ledger := memory.NewLedger()
	clock := &fixedClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	service, err := NewService(ledger, newFakeDirectory(), log.Default(), WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service, ledger, clock
}

func openEvents(events []custody.StatusEvent) int {
	count := 0
	for _, e := range events {
		if e.Open() {
			count++
		}
	}
	return count
}

func latestEvent(events []custody.StatusEvent) *custody.StatusEvent {
	if len(events) == 0 {
		return nil
	}
	latest := events[0]
	for _, e := range events[1:] {
		latest = custody.MostRecent(latest, e)
	}
	return &latest
}

func TestAssignThenReturnRestoresAvailable(t *testing.T) {
	service, ledger, clock := newTestService(t)
	ctx := context.Background()

	record, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 7})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !record.Open() {
		t.Fatal("expected open custody record")
	}
	if got := compliance.DeriveState(latestEvent(ledger.Events(1))); got != compliance.StateWithEmployee {
		t.Fatalf("got state %q want %q", got, compliance.StateWithEmployee)
	}

	clock.advance(time.Hour)
	if _, err := service.Return(ctx, ReturnInput{InstrumentID: 1, EmployeeID: 7}); err != nil {
		t.Fatalf("Return: %v", err)
	}

	events := ledger.Events(1)
	if len(events) != 2 {
		t.Fatalf("got %d events want 2", len(events))
	}
	if openEvents(events) != 0 {
		t.Fatalf("expected no open events, got %d", openEvents(events))
	}
	if got := compliance.DeriveState(latestEvent(events)); got != compliance.StateAvailable {
		t.Fatalf("got state %q want %q", got, compliance.StateAvailable)
	}
}

func TestAssignWhileHeldRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 7}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	_, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 9})
	if !errors.Is(err, custody.ErrInstrumentUnavailable) {
		t.Fatalf("got %v want %v", err, custody.ErrInstrumentUnavailable)
	}
}

func TestReturnFromWrongEmployee(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 7}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	_, err := service.Return(ctx, ReturnInput{InstrumentID: 1, EmployeeID: 9})
	if !errors.Is(err, custody.ErrCustodyMismatch) {
		t.Fatalf("got %v want %v", err, custody.ErrCustodyMismatch)
	}
	_, err = service.Return(ctx, ReturnInput{InstrumentID: 1, EmployeeID: 7})
	if err != nil {
		t.Fatalf("holder return: %v", err)
	}
	_, err = service.Return(ctx, ReturnInput{InstrumentID: 1, EmployeeID: 7})
	if !errors.Is(err, custody.ErrNoOpenCustody) {
		t.Fatalf("got %v want %v", err, custody.ErrNoOpenCustody)
	}
}

func TestShipClosesCustodyAndReceiveRestores(t *testing.T) {
	service, ledger, clock := newTestService(t)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 7}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	clock.advance(24 * time.Hour)
	labID := int64(3)
	event, err := service.Ship(ctx, ShipInput{InstrumentID: 1, LaboratoryID: &labID})
	if err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if event.LabName != "LabCal Sul" {
		t.Fatalf("got lab name %q want %q", event.LabName, "LabCal Sul")
	}
	if got := compliance.DeriveState(latestEvent(ledger.Events(1))); got != compliance.StateAtLab {
		t.Fatalf("got state %q want %q", got, compliance.StateAtLab)
	}

	// Shipping again while the instrument is away must be rejected.
	if _, err := service.Ship(ctx, ShipInput{InstrumentID: 1}); !errors.Is(err, custody.ErrAlreadyAtLab) {
		t.Fatalf("got %v want %v", err, custody.ErrAlreadyAtLab)
	}
	// So must assigning.
	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 9}); !errors.Is(err, custody.ErrInstrumentUnavailable) {
		t.Fatalf("got %v want %v", err, custody.ErrInstrumentUnavailable)
	}

	clock.advance(10 * 24 * time.Hour)
	received, cert, err := service.Receive(ctx, ReceiveInput{InstrumentID: 1, CertificateLink: "http://cert/1"})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if cert == nil || cert.Link != "http://cert/1" {
		t.Fatalf("got certificate %+v want link http://cert/1", cert)
	}
	if received.LabName != "LabCal Sul" {
		t.Fatalf("receipt lab name %q want %q", received.LabName, "LabCal Sul")
	}
	if got := compliance.DeriveState(latestEvent(ledger.Events(1))); got != compliance.StateAvailable {
		t.Fatalf("got state %q want %q", got, compliance.StateAvailable)
	}
	if openEvents(ledger.Events(1)) != 0 {
		t.Fatal("expected all events closed after receipt")
	}
}

func TestReceiveWithoutLinkRejectedBeforeWrites(t *testing.T) {
	service, ledger, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Ship(ctx, ShipInput{InstrumentID: 1, LabName: "Metrolab"}); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	before := len(ledger.Events(1))

	_, _, err := service.Receive(ctx, ReceiveInput{InstrumentID: 1})
	if !errors.Is(err, custody.ErrMissingCertificateLink) {
		t.Fatalf("got %v want %v", err, custody.ErrMissingCertificateLink)
	}
	if got := len(ledger.Events(1)); got != before {
		t.Fatalf("event count changed from %d to %d", before, got)
	}
}

func TestReceiveWithoutShipmentUsesDefaultLabName(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	event, _, err := service.Receive(ctx, ReceiveInput{InstrumentID: 1, CertificateLink: "http://cert/2"})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if event.LabName != custody.DefaultLabName {
		t.Fatalf("got lab name %q want %q", event.LabName, custody.DefaultLabName)
	}
}

func TestValidityWindowFromReceipt(t *testing.T) {
	service, ledger, clock := newTestService(t)
	ctx := context.Background()

	shipAt := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	receiveAt := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	if _, err := service.Ship(ctx, ShipInput{InstrumentID: 1, SentAt: &shipAt, LabName: "Metrolab"}); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if _, _, err := service.Receive(ctx, ReceiveInput{InstrumentID: 1, CertificateLink: "http://cert/1", ReceivedAt: &receiveAt}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	_ = clock

	latest := latestEvent(ledger.Events(1))
	if latest.ReceivedAt == nil {
		t.Fatal("expected receipt time on latest event")
	}
	until := compliance.ValidUntil(latest.ReceivedAt, 365)
	want := time.Date(2025, 1, 19, 10, 0, 0, 0, time.UTC)
	if !until.Equal(want) {
		t.Fatalf("valid until %v want %v", until, want)
	}
	if got := compliance.StatusFor(until, time.Date(2025, 1, 19, 23, 0, 0, 0, time.UTC)); got != compliance.CalibrationOnTime {
		t.Fatalf("got %q want %q", got, compliance.CalibrationOnTime)
	}
	if got := compliance.StatusFor(until, time.Date(2025, 1, 20, 0, 30, 0, 0, time.UTC)); got != compliance.CalibrationOverdue {
		t.Fatalf("got %q want %q", got, compliance.CalibrationOverdue)
	}
}

func TestSignatureFailureDoesNotFailAssign(t *testing.T) {
	ledger := memory.NewLedger()
	service, err := NewService(ledger, newFakeDirectory(), log.Default(), WithSignatureStore(failingSignatureStore{}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	record, err := service.Assign(context.Background(), AssignInput{
		InstrumentID: 1,
		EmployeeID:   7,
		Signature:    "data:image/png;base64,iVBORw0KGgo=",
	})
	if err != nil {
		t.Fatalf("Assign with failing signature store: %v", err)
	}
	if record == nil || record.ID == 0 {
		t.Fatal("expected committed custody record")
	}
}

func TestUnknownReferencesRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 99, EmployeeID: 7}); !errors.Is(err, custody.ErrNotFound) {
		t.Fatalf("got %v want %v", err, custody.ErrNotFound)
	}
	if _, err := service.Assign(ctx, AssignInput{InstrumentID: 1, EmployeeID: 99}); !errors.Is(err, custody.ErrNotFound) {
		t.Fatalf("got %v want %v", err, custody.ErrNotFound)
	}
	badLab := int64(42)
	if _, err := service.Ship(ctx, ShipInput{InstrumentID: 1, LaboratoryID: &badLab}); !errors.Is(err, custody.ErrNotFound) {
		t.Fatalf("got %v want %v", err, custody.ErrNotFound)
	}
}
