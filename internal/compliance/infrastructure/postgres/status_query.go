package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	compliance "metrology-cloud/internal/compliance/domain"
	custody "metrology-cloud/internal/custody/domain"
)

// StatusQuery is the read-side over the lifecycle tables. All derived facts
// are gathered with one correlated latest-per-instrument query, never one
// query per row.
type StatusQuery struct {
	db *sql.DB
}

// NewStatusQuery constructs the read-side.
func NewStatusQuery(db *sql.DB) *StatusQuery {
	return &StatusQuery{db: db}
}

// StatusFilter selects instruments for compliance listing.
type StatusFilter struct {
	ControlledOnly bool
	ActiveOnly     bool
	Search         string
	Page           int
	PerPage        int
}

const statusSelect = `
SELECT i.id, i.code, i.description, COALESCE(t.description, ''), i.controlled,
	i.status, i.periodicity_days,
	COALESCE(pts.total, 0), COALESCE(an.analyzed, 0),
	ship.entered_at, recv.received_at,
	oc.id IS NOT NULL, os.id IS NOT NULL,
	COALESCE(emp.name, ''), COALESCE(os.lab_name, ''), COALESCE(cert.link, '')
FROM instruments i
LEFT JOIN instrument_types t ON t.id = i.type_id
LEFT JOIN LATERAL (
	SELECT COUNT(*) AS total
	FROM calibration_points p
	WHERE p.instrument_id = i.id AND p.active
) pts ON TRUE
LEFT JOIN LATERAL (
	SELECT e.entered_at
	FROM status_events e
	WHERE e.instrument_id = i.id AND e.kind = 'sent_to_lab'
	ORDER BY e.entered_at DESC, e.id DESC
	LIMIT 1
) ship ON TRUE
LEFT JOIN LATERAL (
	SELECT e.received_at
	FROM status_events e
	WHERE e.instrument_id = i.id AND e.kind = 'received_from_lab' AND e.received_at IS NOT NULL
	ORDER BY e.received_at DESC, e.id DESC
	LIMIT 1
) recv ON TRUE
LEFT JOIN LATERAL (
	SELECT COUNT(DISTINCT p.id) AS analyzed
	FROM calibration_points p
	JOIN point_analyses a ON a.point_id = p.id
	WHERE p.instrument_id = i.id AND p.active
		AND (ship.entered_at IS NULL OR a.created_at >= ship.entered_at)
) an ON TRUE
LEFT JOIN LATERAL (
	SELECT r.id, r.employee_id
	FROM custody_records r
	WHERE r.instrument_id = i.id AND r.active AND r.end_at IS NULL
	ORDER BY r.start_at DESC, r.id DESC
	LIMIT 1
) oc ON TRUE
LEFT JOIN employees emp ON emp.id = oc.employee_id
LEFT JOIN LATERAL (
	SELECT e.id, e.lab_name
	FROM status_events e
	WHERE e.instrument_id = i.id AND e.kind = 'sent_to_lab' AND e.received_at IS NULL
	ORDER BY e.entered_at DESC, e.id DESC
	LIMIT 1
) os ON TRUE
LEFT JOIN LATERAL (
	SELECT c.link
	FROM calibration_certificates c
	JOIN status_events e ON e.id = c.event_id
	WHERE e.instrument_id = i.id
	ORDER BY c.created_at DESC, c.id DESC
	LIMIT 1
) cert ON TRUE`

// ListStatus returns raw compliance facts for matching instruments plus the
// unpaged total.
func (q *StatusQuery) ListStatus(ctx context.Context, filter StatusFilter) ([]compliance.StatusRow, int, error) {
	if q == nil || q.db == nil {
		return nil, 0, errors.New("status query: nil db")
	}

	where := "TRUE"
	args := []any{}
	if filter.ControlledOnly {
		where += " AND i.controlled"
	}
	if filter.ActiveOnly {
		where += " AND i.status = 'active'"
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (i.code ILIKE $%d OR i.description ILIKE $%d)", n, n)
	}

	var total int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments i WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := statusSelect + "\nWHERE " + where + "\nORDER BY i.code ASC"
	if filter.PerPage > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PerPage, (page-1)*filter.PerPage)
		query += fmt.Sprintf("\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []compliance.StatusRow
	for rows.Next() {
		var row compliance.StatusRow
		var shipAt, receiveAt sql.NullTime
		err := rows.Scan(
			&row.InstrumentID, &row.Code, &row.Description, &row.TypeName, &row.Controlled,
			&row.InstrumentStatus, &row.PeriodicityDays,
			&row.TotalActivePoints, &row.AnalyzedPoints,
			&shipAt, &receiveAt,
			&row.OpenCustody, &row.OpenShipment,
			&row.HolderName, &row.LabName, &row.CertificateLink,
		)
		if err != nil {
			return nil, 0, err
		}
		if shipAt.Valid {
			t := shipAt.Time.UTC()
			row.LastShipAt = &t
		}
		if receiveAt.Valid {
			t := receiveAt.Time.UTC()
			row.LastReceiveAt = &t
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// GetStatus returns raw compliance facts for one instrument.
func (q *StatusQuery) GetStatus(ctx context.Context, instrumentID int64) (*compliance.StatusRow, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("status query: nil db")
	}
	row := q.db.QueryRowContext(ctx, statusSelect+"\nWHERE i.id = $1", instrumentID)

	var out compliance.StatusRow
	var shipAt, receiveAt sql.NullTime
	err := row.Scan(
		&out.InstrumentID, &out.Code, &out.Description, &out.TypeName, &out.Controlled,
		&out.InstrumentStatus, &out.PeriodicityDays,
		&out.TotalActivePoints, &out.AnalyzedPoints,
		&shipAt, &receiveAt,
		&out.OpenCustody, &out.OpenShipment,
		&out.HolderName, &out.LabName, &out.CertificateLink,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if shipAt.Valid {
		t := shipAt.Time.UTC()
		out.LastShipAt = &t
	}
	if receiveAt.Valid {
		t := receiveAt.Time.UTC()
		out.LastReceiveAt = &t
	}
	return &out, nil
}

// History returns every status event of an instrument, newest first.
func (q *StatusQuery) History(ctx context.Context, instrumentID int64) ([]custody.StatusEvent, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("status query: nil db")
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT e.id, e.instrument_id, e.employee_id, e.laboratory_id, e.kind, e.lab_name,
	e.entered_at, e.returned_at, e.received_at, e.notes, e.created_at,
	COALESCE(emp.name, '')
FROM status_events e
LEFT JOIN employees emp ON emp.id = e.employee_id
WHERE e.instrument_id = $1
ORDER BY e.entered_at DESC, e.id DESC`, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.StatusEvent
	for rows.Next() {
		var e custody.StatusEvent
		var employeeID, laboratoryID sql.NullInt64
		var returnedAt, receivedAt sql.NullTime
		err := rows.Scan(
			&e.ID, &e.InstrumentID, &employeeID, &laboratoryID, &e.Kind, &e.LabName,
			&e.EnteredAt, &returnedAt, &receivedAt, &e.Notes, &e.CreatedAt,
			&e.EmployeeName,
		)
		if err != nil {
			return nil, err
		}
		if employeeID.Valid {
			v := employeeID.Int64
			e.EmployeeID = &v
		}
		if laboratoryID.Valid {
			v := laboratoryID.Int64
			e.LaboratoryID = &v
		}
		e.EnteredAt = e.EnteredAt.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		if returnedAt.Valid {
			t := returnedAt.Time.UTC()
			e.ReturnedAt = &t
		}
		if receivedAt.Valid {
			t := receivedAt.Time.UTC()
			e.ReceivedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastHolderBeforeShipment finds the custody record closed at (or closest
// before) the most recent shipment, used to attribute out-of-tolerance
// findings.
func (q *StatusQuery) LastHolderBeforeShipment(ctx context.Context, instrumentID int64) (*custody.CustodyRecord, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("status query: nil db")
	}
	row := q.db.QueryRowContext(ctx, `
SELECT r.id, r.instrument_id, r.employee_id, r.start_at, r.end_at, r.notes,
	r.active, r.created_at, r.updated_at,
	COALESCE(emp.name, ''), COALESCE(emp.badge, '')
FROM status_events e
JOIN custody_records r ON r.instrument_id = e.instrument_id
	AND r.end_at IS NOT NULL AND r.end_at <= e.entered_at
LEFT JOIN employees emp ON emp.id = r.employee_id
WHERE e.instrument_id = $1 AND e.kind = 'sent_to_lab'
	AND e.entered_at = (
		SELECT MAX(entered_at) FROM status_events
		WHERE instrument_id = $1 AND kind = 'sent_to_lab'
	)
ORDER BY r.end_at DESC, r.id DESC
LIMIT 1`, instrumentID)

	var rec custody.CustodyRecord
	var endAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.InstrumentID, &rec.EmployeeID, &rec.StartAt, &endAt, &rec.Notes,
		&rec.Active, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.EmployeeName, &rec.EmployeeBadge,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.StartAt = rec.StartAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if endAt.Valid {
		t := endAt.Time.UTC()
		rec.EndAt = &t
	}
	return &rec, nil
}
