package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	analysisapp "metrology-cloud/internal/analysis/application"
	analysis "metrology-cloud/internal/analysis/domain"
	catalog "metrology-cloud/internal/catalog/domain"
	custodyapp "metrology-cloud/internal/custody/application"
	custody "metrology-cloud/internal/custody/domain"
	"metrology-cloud/internal/observability/metrics"
)

// Kind selects which legacy spreadsheet layout a file carries.
type Kind string

const (
	KindDeliveries Kind = "deliveries"
	KindShipments  Kind = "shipments"
	KindReceipts   Kind = "receipts"
	KindAnalyses   Kind = "analyses"
)

// ParseKind validates a kind string.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindDeliveries, KindShipments, KindReceipts, KindAnalyses:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("importer: unknown kind %q", value)
	}
}

// CustodyWriter records custody and lab transitions.
type CustodyWriter interface {
	Assign(ctx context.Context, input custodyapp.AssignInput) (*custody.CustodyRecord, error)
	Return(ctx context.Context, input custodyapp.ReturnInput) (*custody.CustodyRecord, error)
	Ship(ctx context.Context, input custodyapp.ShipInput) (*custody.StatusEvent, error)
	Receive(ctx context.Context, input custodyapp.ReceiveInput) (*custody.StatusEvent, *custody.CalibrationCertificate, error)
}

// AnalysisWriter records point analyses.
type AnalysisWriter interface {
	Record(ctx context.Context, input analysisapp.RecordInput) (*analysis.PointAnalysis, error)
}

// Directory resolves spreadsheet keys to catalog rows.
type Directory interface {
	InstrumentByCode(ctx context.Context, code string) (*catalog.Instrument, error)
	EmployeeByBadge(ctx context.Context, badge string) (*catalog.Employee, error)
	PointBySequence(ctx context.Context, instrumentID int64, sequence int) (*catalog.CalibrationPoint, error)
}

// RowError is one rejected spreadsheet row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Summary reports a batch outcome. A bad row never aborts the batch.
type Summary struct {
	Kind     Kind       `json:"kind"`
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Importer replays legacy spreadsheet rows through the lifecycle services so
// imported history obeys the same transition rules as live traffic.
type Importer struct {
	config    Config
	custody   CustodyWriter
	analyses  AnalysisWriter
	directory Directory
}

// New constructs an importer.
func New(config Config, custodyWriter CustodyWriter, analysisWriter AnalysisWriter, directory Directory) (*Importer, error) {
	if custodyWriter == nil || analysisWriter == nil || directory == nil {
		return nil, errors.New("importer: nil dependency")
	}
	return &Importer{config: config, custody: custodyWriter, analyses: analysisWriter, directory: directory}, nil
}

// Import parses and replays one file.
func (imp *Importer) Import(ctx context.Context, kind Kind, data []byte) (*Summary, error) {
	table, err := Parse(data, imp.config)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Kind: kind, Total: len(table.Rows)}
	for i, row := range table.Rows {
		line := i + 2
		var rowErr error
		switch kind {
		case KindDeliveries:
			rowErr = imp.importDelivery(ctx, table, row)
		case KindShipments:
			rowErr = imp.importShipment(ctx, table, row)
		case KindReceipts:
			rowErr = imp.importReceipt(ctx, table, row)
		case KindAnalyses:
			rowErr = imp.importAnalysis(ctx, table, row)
		default:
			return nil, fmt.Errorf("importer: unknown kind %q", kind)
		}
		if rowErr != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{Line: line, Message: rowErr.Error()})
			metrics.IncImportRow(string(kind), metrics.ResultError)
			continue
		}
		summary.Imported++
		metrics.IncImportRow(string(kind), metrics.ResultSuccess)
	}
	return summary, nil
}

func (imp *Importer) importDelivery(ctx context.Context, table *Table, row []string) error {
	inst, err := imp.instrument(ctx, table, row)
	if err != nil {
		return err
	}
	badge := table.Get(row, FieldEmployeeBadge)
	if badge == "" {
		return errors.New("missing employee badge")
	}
	employee, err := imp.directory.EmployeeByBadge(ctx, badge)
	if err != nil {
		return fmt.Errorf("employee %q: %w", badge, err)
	}
	startAt, err := imp.config.ParseDate(table.Get(row, FieldDate))
	if err != nil {
		return err
	}

	if _, err := imp.custody.Assign(ctx, custodyapp.AssignInput{
		InstrumentID: inst.ID,
		EmployeeID:   employee.ID,
		StartAt:      &startAt,
		Notes:        table.Get(row, FieldNotes),
	}); err != nil {
		return err
	}

	// A filled return column closes the interval in the same pass.
	if raw := table.Get(row, FieldReturnDate); raw != "" {
		returnAt, err := imp.config.ParseDate(raw)
		if err != nil {
			return err
		}
		if _, err := imp.custody.Return(ctx, custodyapp.ReturnInput{
			InstrumentID: inst.ID,
			EmployeeID:   employee.ID,
			ReturnAt:     &returnAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (imp *Importer) importShipment(ctx context.Context, table *Table, row []string) error {
	inst, err := imp.instrument(ctx, table, row)
	if err != nil {
		return err
	}
	sentAt, err := imp.config.ParseDate(table.Get(row, FieldDate))
	if err != nil {
		return err
	}
	_, err = imp.custody.Ship(ctx, custodyapp.ShipInput{
		InstrumentID: inst.ID,
		LabName:      table.Get(row, FieldLabName),
		SentAt:       &sentAt,
		Notes:        table.Get(row, FieldNotes),
	})
	return err
}

func (imp *Importer) importReceipt(ctx context.Context, table *Table, row []string) error {
	inst, err := imp.instrument(ctx, table, row)
	if err != nil {
		return err
	}
	receivedAt, err := imp.config.ParseDate(table.Get(row, FieldDate))
	if err != nil {
		return err
	}
	_, _, err = imp.custody.Receive(ctx, custodyapp.ReceiveInput{
		InstrumentID:    inst.ID,
		LabName:         table.Get(row, FieldLabName),
		CertificateLink: table.Get(row, FieldCertificateLink),
		ReceivedAt:      &receivedAt,
		Notes:           table.Get(row, FieldNotes),
	})
	return err
}

func (imp *Importer) importAnalysis(ctx context.Context, table *Table, row []string) error {
	inst, err := imp.instrument(ctx, table, row)
	if err != nil {
		return err
	}
	sequence, err := strconv.Atoi(table.Get(row, FieldPointSequence))
	if err != nil {
		return errors.New("missing or invalid point sequence")
	}
	point, err := imp.directory.PointBySequence(ctx, inst.ID, sequence)
	if err != nil {
		return fmt.Errorf("point %d: %w", sequence, err)
	}

	var createdAt *time.Time
	if raw := table.Get(row, FieldDate); raw != "" {
		parsed, err := imp.config.ParseDate(raw)
		if err != nil {
			return err
		}
		createdAt = &parsed
	}
	var uncertainty *float64
	if raw := table.Get(row, FieldUncertainty); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.New("invalid uncertainty")
		}
		uncertainty = &parsed
	}

	_, err = imp.analyses.Record(ctx, analysisapp.RecordInput{
		PointID:     point.ID,
		Uncertainty: uncertainty,
		Trend:       table.Get(row, FieldTrend),
		Outcome:     table.Get(row, FieldOutcome),
		Notes:       table.Get(row, FieldNotes),
		CreatedAt:   createdAt,
	})
	return err
}

func (imp *Importer) instrument(ctx context.Context, table *Table, row []string) (*catalog.Instrument, error) {
	code := table.Get(row, FieldInstrumentCode)
	if code == "" {
		return nil, errors.New("missing instrument code")
	}
	inst, err := imp.directory.InstrumentByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: %w", code, err)
	}
	return inst, nil
}
