package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	catalog "metrology-cloud/internal/catalog/domain"
)

// ReferenceRepository persists the small reference tables: instrument types,
// sectors, laboratories and employees.
type ReferenceRepository struct {
	db *sql.DB
}

// NewReferenceRepository constructs a repository.
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListTypes returns all instrument types.
func (r *ReferenceRepository) ListTypes(ctx context.Context) ([]catalog.InstrumentType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, description, quality_document, active
FROM instrument_types
ORDER BY description ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.InstrumentType
	for rows.Next() {
		var t catalog.InstrumentType
		if err := rows.Scan(&t.ID, &t.Description, &t.QualityDocument, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateType inserts an instrument type.
func (r *ReferenceRepository) CreateType(ctx context.Context, t *catalog.InstrumentType) error {
	if r == nil || r.db == nil {
		return errors.New("reference repo: nil db")
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO instrument_types (description, quality_document, active)
VALUES ($1,$2,$3)
RETURNING id`, t.Description, t.QualityDocument, t.Active).Scan(&t.ID)
}

// ListSectors returns all sectors.
func (r *ReferenceRepository) ListSectors(ctx context.Context) ([]catalog.Sector, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, description, active, created_at, updated_at
FROM sectors
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Sector
	for rows.Next() {
		var s catalog.Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListLaboratories returns all laboratories.
func (r *ReferenceRepository) ListLaboratories(ctx context.Context) ([]catalog.Laboratory, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, active, created_at, updated_at
FROM laboratories
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Laboratory
	for rows.Next() {
		var l catalog.Laboratory
		if err := rows.Scan(&l.ID, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		l.UpdatedAt = l.UpdatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLaboratory loads one laboratory.
func (r *ReferenceRepository) GetLaboratory(ctx context.Context, id int64) (*catalog.Laboratory, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	var l catalog.Laboratory
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, active, created_at, updated_at
FROM laboratories
WHERE id = $1`, id).Scan(&l.ID, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

// CreateLaboratory inserts a laboratory.
func (r *ReferenceRepository) CreateLaboratory(ctx context.Context, l *catalog.Laboratory) error {
	if r == nil || r.db == nil {
		return errors.New("reference repo: nil db")
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO laboratories (name, active, created_at, updated_at)
VALUES ($1,$2,NOW(),NOW())
RETURNING id, created_at, updated_at`, l.Name, l.Active).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

const employeeColumns = `
id, badge, name, email, position, sector_id, phone, active, hired_at, created_at, updated_at`

// ListEmployees returns employees, optionally only active ones.
func (r *ReferenceRepository) ListEmployees(ctx context.Context, activeOnly bool) ([]catalog.Employee, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	query := `
SELECT ` + employeeColumns + `
FROM employees`
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetEmployee loads one employee.
func (r *ReferenceRepository) GetEmployee(ctx context.Context, id int64) (*catalog.Employee, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+employeeColumns+`
FROM employees
WHERE id = $1`, id)
	return scanEmployee(row)
}

// GetEmployeeByBadge loads one employee by badge number, falling back to the
// e-mail column for subjects that authenticate with an address.
func (r *ReferenceRepository) GetEmployeeByBadge(ctx context.Context, badge string) (*catalog.Employee, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+employeeColumns+`
FROM employees
WHERE badge = $1 OR (email <> '' AND email = $1)
ORDER BY (badge = $1) DESC
LIMIT 1`, strings.TrimSpace(badge))
	return scanEmployee(row)
}

// CreateEmployee inserts an employee.
func (r *ReferenceRepository) CreateEmployee(ctx context.Context, e *catalog.Employee) error {
	if r == nil || r.db == nil {
		return errors.New("reference repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO employees (badge, name, email, position, sector_id, phone, active, hired_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		e.Badge, e.Name, e.Email, e.Position, e.SectorID, e.Phone, e.Active, e.HiredAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateCode
	}
	return err
}

func scanEmployee(row rowScanner) (*catalog.Employee, error) {
	var e catalog.Employee
	var sectorID sql.NullInt64
	var hiredAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.Badge, &e.Name, &e.Email, &e.Position, &sectorID, &e.Phone,
		&e.Active, &hiredAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sectorID.Valid {
		v := sectorID.Int64
		e.SectorID = &v
	}
	if hiredAt.Valid {
		t := hiredAt.Time.UTC()
		e.HiredAt = &t
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
