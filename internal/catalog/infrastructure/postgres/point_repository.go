package postgres

import (
	"context"
	"database/sql"
	"errors"

	catalog "metrology-cloud/internal/catalog/domain"
)

// PointRepository persists calibration points.
type PointRepository struct {
	db *sql.DB
}

// NewPointRepository constructs a repository.
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

const pointColumns = `
id, instrument_id, sequence, description, nominal, minimum, maximum, unit,
tolerance_plus, tolerance_minus, notes, active, created_at, updated_at`

// Create inserts a calibration point.
func (r *PointRepository) Create(ctx context.Context, p *catalog.CalibrationPoint) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO calibration_points (
	instrument_id, sequence, description, nominal, minimum, maximum, unit,
	tolerance_plus, tolerance_minus, notes, active, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		p.InstrumentID, p.Sequence, p.Description, p.Nominal, p.Minimum, p.Maximum,
		p.Unit, p.TolerancePlus, p.ToleranceMinus, p.Notes, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateSequence
	}
	if err != nil {
		return err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return nil
}

// Update rewrites a calibration point.
func (r *PointRepository) Update(ctx context.Context, p *catalog.CalibrationPoint) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE calibration_points SET
	sequence = $2, description = $3, nominal = $4, minimum = $5, maximum = $6,
	unit = $7, tolerance_plus = $8, tolerance_minus = $9, notes = $10,
	active = $11, updated_at = NOW()
WHERE id = $1`,
		p.ID, p.Sequence, p.Description, p.Nominal, p.Minimum, p.Maximum,
		p.Unit, p.TolerancePlus, p.ToleranceMinus, p.Notes, p.Active,
	)
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateSequence
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Get loads one calibration point.
func (r *PointRepository) Get(ctx context.Context, id int64) (*catalog.CalibrationPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+pointColumns+`
FROM calibration_points
WHERE id = $1`, id)
	return scanPoint(row)
}

// ListByInstrument returns the instrument's points ordered by sequence.
func (r *PointRepository) ListByInstrument(ctx context.Context, instrumentID int64, activeOnly bool) ([]catalog.CalibrationPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	query := `
SELECT ` + pointColumns + `
FROM calibration_points
WHERE instrument_id = $1`
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY sequence ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.CalibrationPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CountActive returns the number of active points of an instrument.
func (r *PointRepository) CountActive(ctx context.Context, instrumentID int64) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("point repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM calibration_points
WHERE instrument_id = $1 AND active`, instrumentID).Scan(&count)
	return count, err
}

// Delete removes a calibration point.
func (r *PointRepository) Delete(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM calibration_points WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanPoint(row rowScanner) (*catalog.CalibrationPoint, error) {
	var p catalog.CalibrationPoint
	var nominal, minimum, maximum, tolPlus, tolMinus sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.InstrumentID, &p.Sequence, &p.Description, &nominal, &minimum,
		&maximum, &p.Unit, &tolPlus, &tolMinus, &p.Notes, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if nominal.Valid {
		v := nominal.Float64
		p.Nominal = &v
	}
	if minimum.Valid {
		v := minimum.Float64
		p.Minimum = &v
	}
	if maximum.Valid {
		v := maximum.Float64
		p.Maximum = &v
	}
	if tolPlus.Valid {
		v := tolPlus.Float64
		p.TolerancePlus = &v
	}
	if tolMinus.Valid {
		v := tolMinus.Float64
		p.ToleranceMinus = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
