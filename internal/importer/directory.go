package importer

import (
	"context"
	"errors"

	catalog "metrology-cloud/internal/catalog/domain"
	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
)

// CatalogDirectory resolves spreadsheet keys against the catalog tables.
type CatalogDirectory struct {
	instruments *catalogrepo.InstrumentRepository
	points      *catalogrepo.PointRepository
	references  *catalogrepo.ReferenceRepository
}

// NewCatalogDirectory constructs a directory.
func NewCatalogDirectory(instruments *catalogrepo.InstrumentRepository, points *catalogrepo.PointRepository, references *catalogrepo.ReferenceRepository) (*CatalogDirectory, error) {
	if instruments == nil || points == nil || references == nil {
		return nil, errors.New("importer: nil repository")
	}
	return &CatalogDirectory{instruments: instruments, points: points, references: references}, nil
}

// InstrumentByCode resolves an instrument by its code.
func (d *CatalogDirectory) InstrumentByCode(ctx context.Context, code string) (*catalog.Instrument, error) {
	return d.instruments.GetByCode(ctx, code)
}

// EmployeeByBadge resolves an employee by badge.
func (d *CatalogDirectory) EmployeeByBadge(ctx context.Context, badge string) (*catalog.Employee, error) {
	return d.references.GetEmployeeByBadge(ctx, badge)
}

// PointBySequence resolves a calibration point by instrument and sequence.
func (d *CatalogDirectory) PointBySequence(ctx context.Context, instrumentID int64, sequence int) (*catalog.CalibrationPoint, error) {
	points, err := d.points.ListByInstrument(ctx, instrumentID, false)
	if err != nil {
		return nil, err
	}
	for _, point := range points {
		if point.Sequence == sequence {
			found := point
			return &found, nil
		}
	}
	return nil, catalog.ErrNotFound
}
