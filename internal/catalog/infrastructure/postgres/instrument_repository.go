package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	catalog "metrology-cloud/internal/catalog/domain"
)

// InstrumentRepository persists the instrument register.
type InstrumentRepository struct {
	db *sql.DB
}

// NewInstrumentRepository constructs a repository.
func NewInstrumentRepository(db *sql.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const instrumentColumns = `
i.id, i.code, i.description, i.type_id, COALESCE(t.description, ''), i.controlled,
i.manufacturer, i.model, i.status, i.notes, i.acquired_at, i.periodicity_days,
i.created_at, i.updated_at`

// Create inserts an instrument.
func (r *InstrumentRepository) Create(ctx context.Context, inst *catalog.Instrument) error {
	if r == nil || r.db == nil {
		return errors.New("instrument repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO instruments (
	code, description, type_id, controlled, manufacturer, model, status,
	notes, acquired_at, periodicity_days, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		inst.Code, inst.Description, inst.TypeID, inst.Controlled, inst.Manufacturer,
		inst.Model, inst.Status, inst.Notes, inst.AcquiredAt, inst.PeriodicityDays,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return nil
}

// Update rewrites the mutable instrument fields.
func (r *InstrumentRepository) Update(ctx context.Context, inst *catalog.Instrument) error {
	if r == nil || r.db == nil {
		return errors.New("instrument repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE instruments SET
	code = $2, description = $3, type_id = $4, controlled = $5, manufacturer = $6,
	model = $7, status = $8, notes = $9, acquired_at = $10, periodicity_days = $11,
	updated_at = NOW()
WHERE id = $1`,
		inst.ID, inst.Code, inst.Description, inst.TypeID, inst.Controlled,
		inst.Manufacturer, inst.Model, inst.Status, inst.Notes, inst.AcquiredAt,
		inst.PeriodicityDays,
	)
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateCode
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

// Get loads one instrument with its type name.
func (r *InstrumentRepository) Get(ctx context.Context, id int64) (*catalog.Instrument, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("instrument repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+instrumentColumns+`
FROM instruments i
LEFT JOIN instrument_types t ON t.id = i.type_id
WHERE i.id = $1`, id)
	return scanInstrument(row)
}

// GetByCode loads one instrument by its register code.
func (r *InstrumentRepository) GetByCode(ctx context.Context, code string) (*catalog.Instrument, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("instrument repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+instrumentColumns+`
FROM instruments i
LEFT JOIN instrument_types t ON t.id = i.type_id
WHERE i.code = $1`, code)
	return scanInstrument(row)
}

// List returns instruments matching the filter ordered by code.
func (r *InstrumentRepository) List(ctx context.Context, filter catalog.InstrumentFilter) ([]catalog.Instrument, int, error) {
	if r == nil || r.db == nil {
		return nil, 0, errors.New("instrument repo: nil db")
	}

	where := "TRUE"
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND i.status = $%d", len(args))
	}
	if filter.TypeID != nil {
		args = append(args, *filter.TypeID)
		where += fmt.Sprintf(" AND i.type_id = $%d", len(args))
	}
	if filter.Controlled != nil {
		args = append(args, *filter.Controlled)
		where += fmt.Sprintf(" AND i.controlled = $%d", len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (i.code ILIKE $%d OR i.description ILIKE $%d OR i.manufacturer ILIKE $%d OR i.model ILIKE $%d)", n, n, n, n)
	}

	var total int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM instruments i WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT `+instrumentColumns+`
FROM instruments i
LEFT JOIN instrument_types t ON t.id = i.type_id
WHERE %s
ORDER BY i.code ASC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []catalog.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inst)
	}
	return out, total, rows.Err()
}

// Delete removes an instrument; its points and lifecycle history cascade.
func (r *InstrumentRepository) Delete(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errors.New("instrument repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM instruments WHERE id = $1`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*catalog.Instrument, error) {
	var inst catalog.Instrument
	var typeID sql.NullInt64
	var acquiredAt sql.NullTime
	err := row.Scan(
		&inst.ID, &inst.Code, &inst.Description, &typeID, &inst.TypeName, &inst.Controlled,
		&inst.Manufacturer, &inst.Model, &inst.Status, &inst.Notes, &acquiredAt,
		&inst.PeriodicityDays, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if typeID.Valid {
		v := typeID.Int64
		inst.TypeID = &v
	}
	if acquiredAt.Valid {
		t := acquiredAt.Time.UTC()
		inst.AcquiredAt = &t
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return &inst, nil
}
