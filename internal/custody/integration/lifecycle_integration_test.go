package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
	compliance "metrology-cloud/internal/compliance/domain"
	compliancerepo "metrology-cloud/internal/compliance/infrastructure/postgres"
	custody "metrology-cloud/internal/custody/domain"
	custodyrepo "metrology-cloud/internal/custody/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestLifecycle_AssignShipReceive(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	cleanupTables(ctx, db)

	instrumentID, employeeID := seedCatalog(ctx, t, db)
	ledger := custodyrepo.NewLedgerRepository(db)
	query := compliancerepo.NewStatusQuery(db)

	deliveredAt := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	record, event, err := ledger.Assign(ctx, custody.AssignParams{
		InstrumentID: instrumentID,
		EmployeeID:   employeeID,
		StartAt:      deliveredAt,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if record.EndAt != nil || event.Kind != custody.EventDelivered {
		t.Fatalf("got record %+v event %+v", record, event)
	}

	// Second assign while held is rejected.
	if _, _, err := ledger.Assign(ctx, custody.AssignParams{
		InstrumentID: instrumentID,
		EmployeeID:   employeeID,
		StartAt:      deliveredAt.Add(time.Hour),
	}); err != custody.ErrInstrumentUnavailable {
		t.Fatalf("got %v want ErrInstrumentUnavailable", err)
	}

	status, err := query.GetStatus(ctx, instrumentID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.OpenCustody || status.OpenShipment {
		t.Fatalf("got %+v want open custody only", status)
	}

	sentAt := deliveredAt.AddDate(0, 0, 5)
	shipment, err := ledger.Ship(ctx, custody.ShipParams{
		InstrumentID: instrumentID,
		LabName:      "LabCal Sul",
		SentAt:       sentAt,
	})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipment.LabName != "LabCal Sul" {
		t.Fatalf("got lab %q", shipment.LabName)
	}

	// Shipping closes the custody interval.
	status, err = query.GetStatus(ctx, instrumentID)
	if err != nil {
		t.Fatalf("status after ship: %v", err)
	}
	if status.OpenCustody || !status.OpenShipment {
		t.Fatalf("got %+v want open shipment only", status)
	}

	// Re-ship while at the lab is rejected.
	if _, err := ledger.Ship(ctx, custody.ShipParams{
		InstrumentID: instrumentID,
		SentAt:       sentAt.Add(time.Hour),
	}); err != custody.ErrAlreadyAtLab {
		t.Fatalf("got %v want ErrAlreadyAtLab", err)
	}

	// The holder before the shipment is recorded for attribution.
	holder, err := query.LastHolderBeforeShipment(ctx, instrumentID)
	if err != nil {
		t.Fatalf("last holder: %v", err)
	}
	if holder.EmployeeID != employeeID {
		t.Fatalf("got holder %d want %d", holder.EmployeeID, employeeID)
	}

	receivedAt := sentAt.AddDate(0, 0, 10)
	receipt, cert, err := ledger.Receive(ctx, custody.ReceiveParams{
		InstrumentID:    instrumentID,
		CertificateLink: "https://lab.example/cert-1.pdf",
		ReceivedAt:      receivedAt,
		RegisteredAt:    receivedAt,
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if receipt.LabName != "LabCal Sul" {
		t.Fatalf("got lab %q want carried over from shipment", receipt.LabName)
	}
	if cert == nil || cert.Link == "" {
		t.Fatalf("got cert %+v", cert)
	}

	status, err = query.GetStatus(ctx, instrumentID)
	if err != nil {
		t.Fatalf("status after receive: %v", err)
	}
	if status.OpenCustody || status.OpenShipment {
		t.Fatalf("got %+v want available", status)
	}
	if status.LastReceiveAt == nil || !status.LastReceiveAt.Equal(receivedAt) {
		t.Fatalf("got last receive %v want %v", status.LastReceiveAt, receivedAt)
	}
	derived := compliance.Compute(*status, receivedAt.AddDate(0, 0, 1))
	if derived.State != compliance.StateAvailable {
		t.Fatalf("got state %s want available", derived.State)
	}
	if derived.CalibrationStatus != compliance.CalibrationOnTime {
		t.Fatalf("got calibration %s want on_time", derived.CalibrationStatus)
	}
	if derived.ValidUntil == nil || !derived.ValidUntil.Equal(receivedAt.AddDate(0, 0, 365)) {
		t.Fatalf("got valid until %v", derived.ValidUntil)
	}

	history, err := query.History(ctx, instrumentID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d events want 3", len(history))
	}
	for _, e := range history {
		if e.ReturnedAt == nil {
			t.Fatalf("event %d still open after receive", e.ID)
		}
	}
}

func TestLifecycle_ReceiveWithoutShipmentDefaultsLab(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	cleanupTables(ctx, db)

	instrumentID, _ := seedCatalog(ctx, t, db)
	ledger := custodyrepo.NewLedgerRepository(db)

	receivedAt := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	event, _, err := ledger.Receive(ctx, custody.ReceiveParams{
		InstrumentID:    instrumentID,
		CertificateLink: "https://lab.example/cert-2.pdf",
		ReceivedAt:      receivedAt,
		RegisteredAt:    receivedAt,
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if event.LabName != custody.DefaultLabName {
		t.Fatalf("got lab %q want %q", event.LabName, custody.DefaultLabName)
	}
}

func TestLifecycle_DeleteInstrumentCascadesHistory(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	cleanupTables(ctx, db)

	instrumentID, employeeID := seedCatalog(ctx, t, db)
	ledger := custodyrepo.NewLedgerRepository(db)

	startAt := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	if _, _, err := ledger.Assign(ctx, custody.AssignParams{
		InstrumentID: instrumentID,
		EmployeeID:   employeeID,
		StartAt:      startAt,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := ledger.Ship(ctx, custody.ShipParams{
		InstrumentID: instrumentID,
		LabName:      "LabCal Sul",
		SentAt:       startAt.AddDate(0, 0, 1),
	}); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, _, err := ledger.Receive(ctx, custody.ReceiveParams{
		InstrumentID:    instrumentID,
		CertificateLink: "https://lab.example/cert-3.pdf",
		ReceivedAt:      startAt.AddDate(0, 0, 8),
		RegisteredAt:    startAt.AddDate(0, 0, 8),
	}); err != nil {
		t.Fatalf("receive: %v", err)
	}

	instruments := catalogrepo.NewInstrumentRepository(db)
	if err := instruments.Delete(ctx, instrumentID); err != nil {
		t.Fatalf("delete instrument with history: %v", err)
	}

	for _, table := range []string{"custody_records", "status_events", "calibration_points"} {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE instrument_id = $1", instrumentID,
		).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("%s still has %d rows after instrument delete", table, count)
		}
	}
	var certs int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calibration_certificates").Scan(&certs); err != nil {
		t.Fatalf("count certificates: %v", err)
	}
	if certs != 0 {
		t.Fatalf("calibration_certificates still has %d rows after instrument delete", certs)
	}
}

func seedCatalog(ctx context.Context, t *testing.T, db *sql.DB) (int64, int64) {
	t.Helper()
	var instrumentID, employeeID int64
	err := db.QueryRowContext(ctx, `
INSERT INTO instruments (code, description, controlled, status, periodicity_days)
VALUES ('INT-TEST-01', 'integration gauge', TRUE, 'active', 365)
RETURNING id`).Scan(&instrumentID)
	if err != nil {
		t.Fatalf("seed instrument: %v", err)
	}
	err = db.QueryRowContext(ctx, `
INSERT INTO employees (badge, name) VALUES ('9001', 'Integration Tester')
RETURNING id`).Scan(&employeeID)
	if err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO calibration_points (instrument_id, sequence, unit, nominal, active)
VALUES ($1, 1, 'bar', 10, TRUE)`, instrumentID)
	if err != nil {
		t.Fatalf("seed point: %v", err)
	}
	return instrumentID, employeeID
}

func cleanupTables(ctx context.Context, db *sql.DB) {
	_, _ = db.ExecContext(ctx, "DELETE FROM point_analyses")
	_, _ = db.ExecContext(ctx, "DELETE FROM calibration_certificates")
	_, _ = db.ExecContext(ctx, "DELETE FROM status_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM custody_records")
	_, _ = db.ExecContext(ctx, "DELETE FROM calibration_points")
	_, _ = db.ExecContext(ctx, "DELETE FROM instruments")
	_, _ = db.ExecContext(ctx, "DELETE FROM employees")
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func applyMigrations(db *sql.DB) error {
	root := projectRoot()
	files := []string{
		filepath.Join(root, "migrations", "001_catalog.sql"),
		filepath.Join(root, "migrations", "002_custody.sql"),
		filepath.Join(root, "migrations", "003_analysis.sql"),
		filepath.Join(root, "migrations", "004_audit.sql"),
	}
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
