package application

import (
	"context"
	"errors"
	"time"

	compliance "metrology-cloud/internal/compliance/domain"
	compliancerepo "metrology-cloud/internal/compliance/infrastructure/postgres"
	custody "metrology-cloud/internal/custody/domain"
)

// Reader gathers raw compliance facts from storage.
type Reader interface {
	ListStatus(ctx context.Context, filter compliancerepo.StatusFilter) ([]compliance.StatusRow, int, error)
	GetStatus(ctx context.Context, instrumentID int64) (*compliance.StatusRow, error)
	History(ctx context.Context, instrumentID int64) ([]custody.StatusEvent, error)
	LastHolderBeforeShipment(ctx context.Context, instrumentID int64) (*custody.CustodyRecord, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// HistoryEntry is one status event with its display date for the feed.
type HistoryEntry struct {
	Event       custody.StatusEvent `json:"event"`
	DisplayDate time.Time           `json:"display_date"`
}

// Service is the derived-state read side. It never mutates the ledger.
type Service struct {
	reader Reader
	clock  Clock
}

// ServiceOption customizes the compliance service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a compliance service.
func NewService(reader Reader, opts ...ServiceOption) (*Service, error) {
	if reader == nil {
		return nil, errors.New("compliance: nil reader")
	}
	service := &Service{reader: reader, clock: systemClock{}}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ListStatus returns derived statuses for matching instruments plus the
// unpaged total.
func (s *Service) ListStatus(ctx context.Context, filter compliancerepo.StatusFilter) ([]compliance.InstrumentStatus, int, error) {
	rows, total, err := s.reader.ListStatus(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	today := s.clock.Now()
	out := make([]compliance.InstrumentStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, compliance.Compute(row, today))
	}
	return out, total, nil
}

// GetStatus returns the derived status of one instrument.
func (s *Service) GetStatus(ctx context.Context, instrumentID int64) (*compliance.InstrumentStatus, error) {
	row, err := s.reader.GetStatus(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	status := compliance.Compute(*row, s.clock.Now())
	return &status, nil
}

// Dashboard aggregates controlled, active instruments into counters.
func (s *Service) Dashboard(ctx context.Context) (compliance.DashboardCounts, error) {
	statuses, _, err := s.ListStatus(ctx, compliancerepo.StatusFilter{ControlledOnly: true, ActiveOnly: true})
	if err != nil {
		return compliance.DashboardCounts{}, err
	}
	return compliance.Aggregate(statuses), nil
}

// Available lists instruments free for assignment: no open custody and no
// shipment awaiting receipt.
func (s *Service) Available(ctx context.Context) ([]compliance.InstrumentStatus, error) {
	statuses, _, err := s.ListStatus(ctx, compliancerepo.StatusFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]compliance.InstrumentStatus, 0, len(statuses))
	for _, status := range statuses {
		if status.State == compliance.StateAvailable {
			out = append(out, status)
		}
	}
	return out, nil
}

// History returns the instrument's event feed, newest first, each entry
// stamped with its best-effort display date.
func (s *Service) History(ctx context.Context, instrumentID int64) ([]HistoryEntry, error) {
	events, err := s.reader.History(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(events))
	for _, event := range events {
		out = append(out, HistoryEntry{Event: event, DisplayDate: event.DisplayDate()})
	}
	return out, nil
}

// LastHolder returns the employee who held the instrument before its most
// recent shipment, or nil when history is missing.
func (s *Service) LastHolder(ctx context.Context, instrumentID int64) (*custody.CustodyRecord, error) {
	record, err := s.reader.LastHolderBeforeShipment(ctx, instrumentID)
	if errors.Is(err, custody.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}
