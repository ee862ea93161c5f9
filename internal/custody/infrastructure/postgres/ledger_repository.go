package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	custody "metrology-cloud/internal/custody/domain"
)

// LedgerRepository is the database-backed custody ledger. Every mutation runs
// as one transaction holding a row lock on the instrument, so concurrent
// writers against the same instrument either serialize or fail fast with
// ErrConflict.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// translateErr maps lock/serialization failures onto ErrConflict.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001": // lock_not_available, serialization_failure
			return custody.ErrConflict
		}
	}
	return err
}

func (r *LedgerRepository) begin(ctx context.Context) (*sql.Tx, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	return r.db.BeginTx(ctx, nil)
}

// lockInstrument takes the per-instrument row lock that serializes mutations.
func lockInstrument(ctx context.Context, tx *sql.Tx, instrumentID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `
SELECT id FROM instruments WHERE id = $1 FOR UPDATE NOWAIT`, instrumentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return custody.ErrNotFound
	}
	return translateErr(err)
}

func openCustodyTx(ctx context.Context, tx *sql.Tx, instrumentID int64) (*custody.CustodyRecord, error) {
	row := tx.QueryRowContext(ctx, `
SELECT id, instrument_id, employee_id, start_at, end_at, notes, active, created_at, updated_at
FROM custody_records
WHERE instrument_id = $1 AND active AND end_at IS NULL
ORDER BY start_at DESC, id DESC
LIMIT 1`, instrumentID)
	record, err := scanRecord(row)
	if errors.Is(err, custody.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// openShipmentTx returns the most recent shipment without a receipt.
func openShipmentTx(ctx context.Context, tx *sql.Tx, instrumentID int64) (*custody.StatusEvent, error) {
	row := tx.QueryRowContext(ctx, `
SELECT id, instrument_id, employee_id, laboratory_id, kind, lab_name,
	entered_at, returned_at, received_at, notes, created_at
FROM status_events
WHERE instrument_id = $1 AND kind = $2 AND received_at IS NULL
ORDER BY entered_at DESC, id DESC
LIMIT 1`, instrumentID, custody.EventSentToLab)
	event, err := scanEvent(row)
	if errors.Is(err, custody.ErrNotFound) {
		return nil, nil
	}
	return event, err
}

func closeOpenEventsTx(ctx context.Context, tx *sql.Tx, instrumentID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
UPDATE status_events SET returned_at = $2
WHERE instrument_id = $1 AND returned_at IS NULL`, instrumentID, at)
	return err
}

func insertEventTx(ctx context.Context, tx *sql.Tx, e *custody.StatusEvent) error {
	return tx.QueryRowContext(ctx, `
INSERT INTO status_events (
	instrument_id, employee_id, laboratory_id, kind, lab_name,
	entered_at, returned_at, received_at, notes, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		e.InstrumentID, e.EmployeeID, e.LaboratoryID, e.Kind, e.LabName,
		e.EnteredAt, e.ReturnedAt, e.ReceivedAt, e.Notes, e.CreatedAt,
	).Scan(&e.ID)
}

// Assign opens a custody interval and its delivery event.
func (r *LedgerRepository) Assign(ctx context.Context, params custody.AssignParams) (*custody.CustodyRecord, *custody.StatusEvent, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockInstrument(ctx, tx, params.InstrumentID); err != nil {
		return nil, nil, err
	}
	openCustody, err := openCustodyTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, nil, translateErr(err)
	}
	openShipment, err := openShipmentTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, nil, translateErr(err)
	}
	if err := custody.CheckAssignable(openCustody, openShipment); err != nil {
		return nil, nil, err
	}

	at := params.StartAt.UTC()
	if err := closeOpenEventsTx(ctx, tx, params.InstrumentID, at); err != nil {
		return nil, nil, translateErr(err)
	}

	record := &custody.CustodyRecord{
		InstrumentID: params.InstrumentID,
		EmployeeID:   params.EmployeeID,
		StartAt:      at,
		Notes:        params.Notes,
		Active:       true,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO custody_records (instrument_id, employee_id, start_at, notes, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,TRUE,$5,$5)
RETURNING id`,
		record.InstrumentID, record.EmployeeID, record.StartAt, record.Notes, at,
	).Scan(&record.ID)
	if err != nil {
		return nil, nil, translateErr(err)
	}

	employeeID := params.EmployeeID
	event := &custody.StatusEvent{
		InstrumentID: params.InstrumentID,
		EmployeeID:   &employeeID,
		Kind:         custody.EventDelivered,
		EnteredAt:    at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	if err := insertEventTx(ctx, tx, event); err != nil {
		return nil, nil, translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, translateErr(err)
	}
	return record, event, nil
}

// Return closes the custody interval held by the employee.
func (r *LedgerRepository) Return(ctx context.Context, params custody.ReturnParams) (*custody.CustodyRecord, *custody.StatusEvent, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockInstrument(ctx, tx, params.InstrumentID); err != nil {
		return nil, nil, err
	}
	open, err := openCustodyTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, nil, translateErr(err)
	}
	if err := custody.CheckReturnable(open, params.EmployeeID); err != nil {
		return nil, nil, err
	}

	at := params.ReturnAt.UTC()
	_, err = tx.ExecContext(ctx, `
UPDATE custody_records SET end_at = $2, active = FALSE, updated_at = $2
WHERE id = $1`, open.ID, at)
	if err != nil {
		return nil, nil, translateErr(err)
	}
	if err := closeOpenEventsTx(ctx, tx, params.InstrumentID, at); err != nil {
		return nil, nil, translateErr(err)
	}

	open.EndAt = &at
	open.Active = false
	open.UpdatedAt = at

	employeeID := params.EmployeeID
	event := &custody.StatusEvent{
		InstrumentID: params.InstrumentID,
		EmployeeID:   &employeeID,
		Kind:         custody.EventReturned,
		EnteredAt:    at,
		ReturnedAt:   &at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	if err := insertEventTx(ctx, tx, event); err != nil {
		return nil, nil, translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, translateErr(err)
	}
	return open, event, nil
}

// Ship records a laboratory shipment, closing open custody and backfilling a
// stale receipt-less shipment with the shipment time.
func (r *LedgerRepository) Ship(ctx context.Context, params custody.ShipParams) (*custody.StatusEvent, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockInstrument(ctx, tx, params.InstrumentID); err != nil {
		return nil, err
	}
	shipment, err := openShipmentTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, translateErr(err)
	}
	if err := custody.CheckShippable(shipment); err != nil {
		return nil, err
	}

	at := params.SentAt.UTC()
	open, err := openCustodyTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, translateErr(err)
	}
	if open != nil {
		_, err = tx.ExecContext(ctx, `
UPDATE custody_records SET end_at = $2, active = FALSE, updated_at = $2
WHERE id = $1`, open.ID, at)
		if err != nil {
			return nil, translateErr(err)
		}
	}
	if err := closeOpenEventsTx(ctx, tx, params.InstrumentID, at); err != nil {
		return nil, translateErr(err)
	}
	if shipment != nil {
		_, err = tx.ExecContext(ctx, `
UPDATE status_events SET received_at = $2
WHERE id = $1 AND received_at IS NULL`, shipment.ID, at)
		if err != nil {
			return nil, translateErr(err)
		}
	}

	labName := strings.TrimSpace(params.LabName)
	if labName == "" {
		labName = custody.DefaultLabName
	}
	event := &custody.StatusEvent{
		InstrumentID: params.InstrumentID,
		LaboratoryID: params.LaboratoryID,
		Kind:         custody.EventSentToLab,
		LabName:      labName,
		EnteredAt:    at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	if err := insertEventTx(ctx, tx, event); err != nil {
		return nil, translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateErr(err)
	}
	return event, nil
}

// Receive stamps the matching shipment, inserts the receipt event and stores
// its certificate.
func (r *LedgerRepository) Receive(ctx context.Context, params custody.ReceiveParams) (*custody.StatusEvent, *custody.CalibrationCertificate, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockInstrument(ctx, tx, params.InstrumentID); err != nil {
		return nil, nil, err
	}
	matched, err := openShipmentTx(ctx, tx, params.InstrumentID)
	if err != nil {
		return nil, nil, translateErr(err)
	}

	receivedAt := params.ReceivedAt.UTC()
	registeredAt := params.RegisteredAt.UTC()
	if matched != nil {
		_, err = tx.ExecContext(ctx, `
UPDATE status_events SET received_at = $2, returned_at = COALESCE(returned_at, $2)
WHERE id = $1`, matched.ID, receivedAt)
		if err != nil {
			return nil, nil, translateErr(err)
		}
	}

	event := &custody.StatusEvent{
		InstrumentID: params.InstrumentID,
		EmployeeID:   params.ReceiverID,
		LaboratoryID: params.LaboratoryID,
		Kind:         custody.EventReceivedFromLab,
		LabName:      custody.ResolveLabName(params.LabName, matched),
		EnteredAt:    registeredAt,
		ReturnedAt:   &registeredAt,
		ReceivedAt:   &receivedAt,
		Notes:        params.Notes,
		CreatedAt:    registeredAt,
	}
	if err := insertEventTx(ctx, tx, event); err != nil {
		return nil, nil, translateErr(err)
	}

	cert := &custody.CalibrationCertificate{
		EventID:   event.ID,
		Link:      params.CertificateLink,
		CreatedAt: registeredAt,
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO calibration_certificates (event_id, link, created_at)
VALUES ($1,$2,$3)
RETURNING id`, cert.EventID, cert.Link, cert.CreatedAt).Scan(&cert.ID)
	if err != nil {
		return nil, nil, translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, translateErr(err)
	}
	return event, cert, nil
}

// LatestCertificate returns the newest certificate of the instrument, nil
// when none exists.
func (r *LedgerRepository) LatestCertificate(ctx context.Context, instrumentID int64) (*custody.CalibrationCertificate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT c.id, c.event_id, c.link, c.created_at
FROM calibration_certificates c
JOIN status_events e ON e.id = c.event_id
WHERE e.instrument_id = $1
ORDER BY c.created_at DESC, c.id DESC
LIMIT 1`, instrumentID)

	var cert custody.CalibrationCertificate
	err := row.Scan(&cert.ID, &cert.EventID, &cert.Link, &cert.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cert.CreatedAt = cert.CreatedAt.UTC()
	return &cert, nil
}

// ListCustody returns a custody page with employee/instrument display fields.
func (r *LedgerRepository) ListCustody(ctx context.Context, filter custody.CustodyFilter) ([]custody.CustodyRecord, int, error) {
	if r == nil || r.db == nil {
		return nil, 0, errors.New("ledger repo: nil db")
	}

	where := "TRUE"
	args := []any{}
	switch filter.Status {
	case "open":
		where += " AND r.active AND r.end_at IS NULL"
	case "closed":
		where += " AND (NOT r.active OR r.end_at IS NOT NULL)"
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (e.name ILIKE $%d OR e.badge ILIKE $%d OR i.code ILIKE $%d OR i.description ILIKE $%d)", n, n, n, n)
	}

	var total int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM custody_records r
JOIN employees e ON e.id = r.employee_id
JOIN instruments i ON i.id = r.instrument_id
WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT r.id, r.instrument_id, r.employee_id, r.start_at, r.end_at, r.notes,
	r.active, r.created_at, r.updated_at,
	e.name, e.badge, i.code, i.description
FROM custody_records r
JOIN employees e ON e.id = r.employee_id
JOIN instruments i ON i.id = r.instrument_id
WHERE %s
ORDER BY r.start_at DESC, r.id DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []custody.CustodyRecord
	for rows.Next() {
		var rec custody.CustodyRecord
		var endAt sql.NullTime
		err := rows.Scan(
			&rec.ID, &rec.InstrumentID, &rec.EmployeeID, &rec.StartAt, &endAt, &rec.Notes,
			&rec.Active, &rec.CreatedAt, &rec.UpdatedAt,
			&rec.EmployeeName, &rec.EmployeeBadge, &rec.InstrumentCode, &rec.InstrumentDesc,
		)
		if err != nil {
			return nil, 0, err
		}
		rec.StartAt = rec.StartAt.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		if endAt.Valid {
			t := endAt.Time.UTC()
			rec.EndAt = &t
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*custody.CustodyRecord, error) {
	var rec custody.CustodyRecord
	var endAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.InstrumentID, &rec.EmployeeID, &rec.StartAt, &endAt,
		&rec.Notes, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt,
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

func scanEvent(row rowScanner) (*custody.StatusEvent, error) {
	var e custody.StatusEvent
	var employeeID, laboratoryID sql.NullInt64
	var returnedAt, receivedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.InstrumentID, &employeeID, &laboratoryID, &e.Kind, &e.LabName,
		&e.EnteredAt, &returnedAt, &receivedAt, &e.Notes, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.ErrNotFound
	}
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
	return &e, nil
}
