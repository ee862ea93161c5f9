package application

import (
	"context"
	"errors"

	catalog "metrology-cloud/internal/catalog/domain"
)

// InstrumentRepository persists instruments.
type InstrumentRepository interface {
	Create(ctx context.Context, inst *catalog.Instrument) error
	Update(ctx context.Context, inst *catalog.Instrument) error
	Get(ctx context.Context, id int64) (*catalog.Instrument, error)
	GetByCode(ctx context.Context, code string) (*catalog.Instrument, error)
	List(ctx context.Context, filter catalog.InstrumentFilter) ([]catalog.Instrument, int, error)
	Delete(ctx context.Context, id int64) error
}

// PointRepository persists calibration points.
type PointRepository interface {
	Create(ctx context.Context, p *catalog.CalibrationPoint) error
	Update(ctx context.Context, p *catalog.CalibrationPoint) error
	Get(ctx context.Context, id int64) (*catalog.CalibrationPoint, error)
	ListByInstrument(ctx context.Context, instrumentID int64, activeOnly bool) ([]catalog.CalibrationPoint, error)
	CountActive(ctx context.Context, instrumentID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// Service handles the instrument register and its calibration points.
type Service struct {
	instruments InstrumentRepository
	points      PointRepository
}

// NewService constructs a catalog service.
func NewService(instruments InstrumentRepository, points PointRepository) (*Service, error) {
	if instruments == nil || points == nil {
		return nil, errors.New("catalog: nil repository")
	}
	return &Service{instruments: instruments, points: points}, nil
}

// CreateInstrument registers an instrument. New instruments may start without
// points; activation is what requires them.
func (s *Service) CreateInstrument(ctx context.Context, inst *catalog.Instrument) error {
	if inst == nil {
		return errors.New("catalog: nil instrument")
	}
	if inst.Status == "" {
		inst.Status = catalog.StatusInactive
	}
	if err := inst.Validate(); err != nil {
		return err
	}
	if inst.Status == catalog.StatusActive {
		return catalog.ErrInstrumentWithoutPoints
	}
	return s.instruments.Create(ctx, inst)
}

// UpdateInstrument rewrites an instrument. Moving to active status requires
// at least one active calibration point.
func (s *Service) UpdateInstrument(ctx context.Context, inst *catalog.Instrument) error {
	if inst == nil {
		return errors.New("catalog: nil instrument")
	}
	if err := inst.Validate(); err != nil {
		return err
	}
	if inst.Status == catalog.StatusActive {
		active, err := s.points.CountActive(ctx, inst.ID)
		if err != nil {
			return err
		}
		if active == 0 {
			return catalog.ErrInstrumentWithoutPoints
		}
	}
	return s.instruments.Update(ctx, inst)
}

// GetInstrument loads an instrument with its calibration points.
func (s *Service) GetInstrument(ctx context.Context, id int64) (*catalog.Instrument, []catalog.CalibrationPoint, error) {
	inst, err := s.instruments.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	points, err := s.points.ListByInstrument(ctx, id, false)
	if err != nil {
		return nil, nil, err
	}
	return inst, points, nil
}

// ListInstruments returns an instrument page plus the unpaged total.
func (s *Service) ListInstruments(ctx context.Context, filter catalog.InstrumentFilter) ([]catalog.Instrument, int, error) {
	return s.instruments.List(ctx, filter)
}

// DeleteInstrument removes an instrument and its points.
func (s *Service) DeleteInstrument(ctx context.Context, id int64) error {
	return s.instruments.Delete(ctx, id)
}

// AddPoint appends a calibration point to an instrument.
func (s *Service) AddPoint(ctx context.Context, p *catalog.CalibrationPoint) error {
	if p == nil {
		return errors.New("catalog: nil point")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := s.instruments.Get(ctx, p.InstrumentID); err != nil {
		return err
	}
	return s.points.Create(ctx, p)
}

// GetPoint loads one calibration point.
func (s *Service) GetPoint(ctx context.Context, id int64) (*catalog.CalibrationPoint, error) {
	return s.points.Get(ctx, id)
}

// UpdatePoint rewrites a calibration point. Deactivating the last active
// point of an instrument is rejected.
func (s *Service) UpdatePoint(ctx context.Context, p *catalog.CalibrationPoint) error {
	if p == nil {
		return errors.New("catalog: nil point")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.Active {
		current, err := s.points.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		if current.Active {
			if err := s.checkNotLastActivePoint(ctx, current.InstrumentID); err != nil {
				return err
			}
		}
	}
	return s.points.Update(ctx, p)
}

// DeletePoint removes a calibration point. The last active point of an
// instrument cannot be removed, whatever the instrument's status.
func (s *Service) DeletePoint(ctx context.Context, id int64) error {
	p, err := s.points.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Active {
		if err := s.checkNotLastActivePoint(ctx, p.InstrumentID); err != nil {
			return err
		}
	}
	return s.points.Delete(ctx, id)
}

func (s *Service) checkNotLastActivePoint(ctx context.Context, instrumentID int64) error {
	active, err := s.points.CountActive(ctx, instrumentID)
	if err != nil {
		return err
	}
	if active <= 1 {
		return catalog.ErrLastActivePoint
	}
	return nil
}
