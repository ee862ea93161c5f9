package application

import (
	"context"
	"errors"
	"testing"

	catalog "metrology-cloud/internal/catalog/domain"
)

type fakeInstrumentRepo struct {
	nextID int64
	items  map[int64]catalog.Instrument
}

func newFakeInstrumentRepo() *fakeInstrumentRepo {
	return &fakeInstrumentRepo{items: make(map[int64]catalog.Instrument)}
}

func (f *fakeInstrumentRepo) Create(ctx context.Context, inst *catalog.Instrument) error {
	_ = ctx
	for _, existing := range f.items {
		if existing.Code == inst.Code {
			return catalog.ErrDuplicateCode
		}
	}
	f.nextID++
	inst.ID = f.nextID
	f.items[inst.ID] = *inst
	return nil
}

func (f *fakeInstrumentRepo) Update(ctx context.Context, inst *catalog.Instrument) error {
	_ = ctx
	if _, ok := f.items[inst.ID]; !ok {
		return catalog.ErrNotFound
	}
	f.items[inst.ID] = *inst
	return nil
}

func (f *fakeInstrumentRepo) Get(ctx context.Context, id int64) (*catalog.Instrument, error) {
	_ = ctx
	inst, ok := f.items[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &inst, nil
}

func (f *fakeInstrumentRepo) GetByCode(ctx context.Context, code string) (*catalog.Instrument, error) {
	_ = ctx
	for _, inst := range f.items {
		if inst.Code == code {
			found := inst
			return &found, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeInstrumentRepo) List(ctx context.Context, filter catalog.InstrumentFilter) ([]catalog.Instrument, int, error) {
	_ = ctx
	_ = filter
	var out []catalog.Instrument
	for _, inst := range f.items {
		out = append(out, inst)
	}
	return out, len(out), nil
}

func (f *fakeInstrumentRepo) Delete(ctx context.Context, id int64) error {
	_ = ctx
	if _, ok := f.items[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakePointRepo struct {
	nextID int64
	items  map[int64]catalog.CalibrationPoint
}

func newFakePointRepo() *fakePointRepo {
	return &fakePointRepo{items: make(map[int64]catalog.CalibrationPoint)}
}

func (f *fakePointRepo) Create(ctx context.Context, p *catalog.CalibrationPoint) error {
	_ = ctx
	for _, existing := range f.items {
		if existing.InstrumentID == p.InstrumentID && existing.Sequence == p.Sequence {
			return catalog.ErrDuplicateSequence
		}
	}
	f.nextID++
	p.ID = f.nextID
	f.items[p.ID] = *p
	return nil
}

func (f *fakePointRepo) Update(ctx context.Context, p *catalog.CalibrationPoint) error {
	_ = ctx
	if _, ok := f.items[p.ID]; !ok {
		return catalog.ErrNotFound
	}
	f.items[p.ID] = *p
	return nil
}

func (f *fakePointRepo) Get(ctx context.Context, id int64) (*catalog.CalibrationPoint, error) {
	_ = ctx
	p, ok := f.items[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (f *fakePointRepo) ListByInstrument(ctx context.Context, instrumentID int64, activeOnly bool) ([]catalog.CalibrationPoint, error) {
	_ = ctx
	var out []catalog.CalibrationPoint
	for _, p := range f.items {
		if p.InstrumentID != instrumentID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePointRepo) CountActive(ctx context.Context, instrumentID int64) (int, error) {
	_ = ctx
	count := 0
	for _, p := range f.items {
		if p.InstrumentID == instrumentID && p.Active {
			count++
		}
	}
	return count, nil
}

func (f *fakePointRepo) Delete(ctx context.Context, id int64) error {
	_ = ctx
	if _, ok := f.items[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeInstrumentRepo, *fakePointRepo) {
	t.Helper()
	instruments := newFakeInstrumentRepo()
	points := newFakePointRepo()
	service, err := NewService(instruments, points)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service, instruments, points
}

func f64(v float64) *float64 { return &v }

func TestCreateInstrumentStartsInactive(t *testing.T) {
	service, _, _ := newTestService(t)
	inst := &catalog.Instrument{Code: "PB-0001", Description: "caliper 150mm", PeriodicityDays: 180}
	if err := service.CreateInstrument(context.Background(), inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	if inst.Status != catalog.StatusInactive {
		t.Fatalf("got status %q want %q", inst.Status, catalog.StatusInactive)
	}
	if inst.ID == 0 {
		t.Fatal("expected assigned id")
	}
}

func TestCreateInstrumentRejectsActiveWithoutPoints(t *testing.T) {
	service, _, _ := newTestService(t)
	inst := &catalog.Instrument{Code: "PB-0002", Status: catalog.StatusActive, PeriodicityDays: 180}
	err := service.CreateInstrument(context.Background(), inst)
	if !errors.Is(err, catalog.ErrInstrumentWithoutPoints) {
		t.Fatalf("got %v want %v", err, catalog.ErrInstrumentWithoutPoints)
	}
}

func TestActivationRequiresActivePoint(t *testing.T) {
	service, _, points := newTestService(t)
	ctx := context.Background()

	inst := &catalog.Instrument{Code: "PB-0003", PeriodicityDays: 365}
	if err := service.CreateInstrument(ctx, inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}

	inst.Status = catalog.StatusActive
	if err := service.UpdateInstrument(ctx, inst); !errors.Is(err, catalog.ErrInstrumentWithoutPoints) {
		t.Fatalf("got %v want %v", err, catalog.ErrInstrumentWithoutPoints)
	}

	point := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(25), Unit: "mm", Active: true}
	if err := service.AddPoint(ctx, point); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := service.UpdateInstrument(ctx, inst); err != nil {
		t.Fatalf("UpdateInstrument after adding point: %v", err)
	}
	_ = points
}

func TestDeleteLastActivePointRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	inst := &catalog.Instrument{Code: "PB-0004", PeriodicityDays: 365}
	if err := service.CreateInstrument(ctx, inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	p1 := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(0), Unit: "mm", Active: true}
	p2 := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 2, Nominal: f64(100), Unit: "mm", Active: true}
	if err := service.AddPoint(ctx, p1); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := service.AddPoint(ctx, p2); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	inst.Status = catalog.StatusActive
	if err := service.UpdateInstrument(ctx, inst); err != nil {
		t.Fatalf("UpdateInstrument: %v", err)
	}

	if err := service.DeletePoint(ctx, p1.ID); err != nil {
		t.Fatalf("deleting one of two points: %v", err)
	}
	if err := service.DeletePoint(ctx, p2.ID); !errors.Is(err, catalog.ErrLastActivePoint) {
		t.Fatalf("got %v want %v", err, catalog.ErrLastActivePoint)
	}
}

func TestDeactivateLastActivePointRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	inst := &catalog.Instrument{Code: "PB-0005", PeriodicityDays: 365}
	if err := service.CreateInstrument(ctx, inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	p := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(50), Unit: "mm", Active: true}
	if err := service.AddPoint(ctx, p); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	inst.Status = catalog.StatusActive
	if err := service.UpdateInstrument(ctx, inst); err != nil {
		t.Fatalf("UpdateInstrument: %v", err)
	}

	p.Active = false
	if err := service.UpdatePoint(ctx, p); !errors.Is(err, catalog.ErrLastActivePoint) {
		t.Fatalf("got %v want %v", err, catalog.ErrLastActivePoint)
	}
}

func TestDeleteLastActivePointRejectedOnInactiveInstrument(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	inst := &catalog.Instrument{Code: "PB-0006", PeriodicityDays: 365}
	if err := service.CreateInstrument(ctx, inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	if inst.Status != catalog.StatusInactive {
		t.Fatalf("got status %q want %q", inst.Status, catalog.StatusInactive)
	}
	p := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(10), Unit: "mm", Active: true}
	if err := service.AddPoint(ctx, p); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}

	// The rule holds regardless of instrument status.
	if err := service.DeletePoint(ctx, p.ID); !errors.Is(err, catalog.ErrLastActivePoint) {
		t.Fatalf("got %v want %v", err, catalog.ErrLastActivePoint)
	}
	p.Active = false
	if err := service.UpdatePoint(ctx, p); !errors.Is(err, catalog.ErrLastActivePoint) {
		t.Fatalf("got %v want %v", err, catalog.ErrLastActivePoint)
	}
}

func TestAddPointDuplicateSequence(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	inst := &catalog.Instrument{Code: "PB-0007", PeriodicityDays: 365}
	if err := service.CreateInstrument(ctx, inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	p1 := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(10), Unit: "mm", Active: true}
	p2 := &catalog.CalibrationPoint{InstrumentID: inst.ID, Sequence: 1, Nominal: f64(20), Unit: "mm", Active: true}
	if err := service.AddPoint(ctx, p1); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := service.AddPoint(ctx, p2); !errors.Is(err, catalog.ErrDuplicateSequence) {
		t.Fatalf("got %v want %v", err, catalog.ErrDuplicateSequence)
	}
}

func TestAddPointUnknownInstrument(t *testing.T) {
	service, _, _ := newTestService(t)
	p := &catalog.CalibrationPoint{InstrumentID: 99, Sequence: 1, Nominal: f64(10), Unit: "mm", Active: true}
	if err := service.AddPoint(context.Background(), p); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("got %v want %v", err, catalog.ErrNotFound)
	}
}
