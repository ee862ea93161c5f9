package application

import (
	"context"
	"errors"
	"log"
	"time"

	catalog "metrology-cloud/internal/catalog/domain"
	custody "metrology-cloud/internal/custody/domain"
	"metrology-cloud/internal/observability/metrics"
	"metrology-cloud/internal/signature"
)

// Directory resolves the reference data the ledger depends on.
type Directory interface {
	GetInstrument(ctx context.Context, id int64) (*catalog.Instrument, error)
	GetEmployee(ctx context.Context, id int64) (*catalog.Employee, error)
	GetLaboratory(ctx context.Context, id int64) (*catalog.Laboratory, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AssignInput describes an assignment request.
type AssignInput struct {
	InstrumentID int64
	EmployeeID   int64
	StartAt      *time.Time
	Notes        string
	// Signature is an optional base64 image; storing it is best-effort.
	Signature string
}

// ReturnInput describes a return request.
type ReturnInput struct {
	InstrumentID int64
	EmployeeID   int64
	ReturnAt     *time.Time
	Notes        string
}

// ShipInput describes a shipment request.
type ShipInput struct {
	InstrumentID int64
	LaboratoryID *int64
	LabName      string
	SentAt       *time.Time
	Notes        string
}

// ReceiveInput describes a lab receipt request.
type ReceiveInput struct {
	InstrumentID    int64
	LaboratoryID    *int64
	LabName         string
	CertificateLink string
	ReceivedAt      *time.Time
	ReceiverID      *int64
	Notes           string
}

// Service orchestrates custody and lab transitions on top of the ledger.
type Service struct {
	ledger     custody.Ledger
	directory  Directory
	signatures signature.Store
	clock      Clock
	logger     *log.Logger
}

// ServiceOption customizes the custody service.
type ServiceOption func(*Service)

// WithSignatureStore assigns a signature store.
func WithSignatureStore(store signature.Store) ServiceOption {
	return func(s *Service) {
		s.signatures = store
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a custody service.
func NewService(ledger custody.Ledger, directory Directory, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("custody: nil ledger")
	}
	if directory == nil {
		return nil, errors.New("custody: nil directory")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		ledger:    ledger,
		directory: directory,
		clock:     systemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

func (s *Service) at(explicit *time.Time) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return explicit.UTC()
	}
	return s.clock.Now().UTC()
}

func (s *Service) resolveInstrument(ctx context.Context, id int64) error {
	_, err := s.directory.GetInstrument(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return custody.ErrNotFound
	}
	return err
}

func (s *Service) resolveEmployee(ctx context.Context, id int64) error {
	_, err := s.directory.GetEmployee(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return custody.ErrNotFound
	}
	return err
}

// Assign hands an instrument to an employee. The signature image, when
// present, is stored after the ledger commit and never fails the assignment.
func (s *Service) Assign(ctx context.Context, input AssignInput) (*custody.CustodyRecord, error) {
	started := s.clock.Now()
	if err := s.resolveInstrument(ctx, input.InstrumentID); err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, err
	}
	if err := s.resolveEmployee(ctx, input.EmployeeID); err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, err
	}

	record, _, err := s.ledger.Assign(ctx, custody.AssignParams{
		InstrumentID: input.InstrumentID,
		EmployeeID:   input.EmployeeID,
		StartAt:      s.at(input.StartAt),
		Notes:        input.Notes,
	})
	if err != nil {
		metrics.IncLifecycleError(reason(err))
		return nil, err
	}
	metrics.ObserveLifecycle(string(custody.EventDelivered), s.clock.Now().Sub(started))

	if input.Signature != "" && s.signatures != nil {
		if image, decodeErr := signature.DecodeImage(input.Signature); decodeErr != nil {
			s.logger.Printf("custody: signature decode failed for record %d: %v", record.ID, decodeErr)
		} else if _, saveErr := s.signatures.Save(ctx, record.ID, image); saveErr != nil {
			s.logger.Printf("custody: signature store failed for record %d: %v", record.ID, saveErr)
		}
	}
	return record, nil
}

// Return takes an instrument back from its current holder.
func (s *Service) Return(ctx context.Context, input ReturnInput) (*custody.CustodyRecord, error) {
	started := s.clock.Now()
	if err := s.resolveInstrument(ctx, input.InstrumentID); err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, err
	}

	record, _, err := s.ledger.Return(ctx, custody.ReturnParams{
		InstrumentID: input.InstrumentID,
		EmployeeID:   input.EmployeeID,
		ReturnAt:     s.at(input.ReturnAt),
		Notes:        input.Notes,
	})
	if err != nil {
		metrics.IncLifecycleError(reason(err))
		return nil, err
	}
	metrics.ObserveLifecycle(string(custody.EventReturned), s.clock.Now().Sub(started))
	return record, nil
}

// Ship sends an instrument to an external laboratory.
func (s *Service) Ship(ctx context.Context, input ShipInput) (*custody.StatusEvent, error) {
	started := s.clock.Now()
	if err := s.resolveInstrument(ctx, input.InstrumentID); err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, err
	}
	labName, err := s.resolveLabName(ctx, input.LaboratoryID, input.LabName)
	if err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, err
	}

	event, err := s.ledger.Ship(ctx, custody.ShipParams{
		InstrumentID: input.InstrumentID,
		LaboratoryID: input.LaboratoryID,
		LabName:      labName,
		SentAt:       s.at(input.SentAt),
		Notes:        input.Notes,
	})
	if err != nil {
		metrics.IncLifecycleError(reason(err))
		return nil, err
	}
	metrics.ObserveLifecycle(string(custody.EventSentToLab), s.clock.Now().Sub(started))
	return event, nil
}

// Receive books an instrument back from the laboratory with its certificate.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (*custody.StatusEvent, *custody.CalibrationCertificate, error) {
	started := s.clock.Now()
	if input.CertificateLink == "" {
		metrics.IncLifecycleError("missing_certificate")
		return nil, nil, custody.ErrMissingCertificateLink
	}
	if err := s.resolveInstrument(ctx, input.InstrumentID); err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, nil, err
	}
	labName, err := s.resolveLabName(ctx, input.LaboratoryID, input.LabName)
	if err != nil {
		metrics.IncLifecycleError("not_found")
		return nil, nil, err
	}

	receivedAt := s.at(input.ReceivedAt)
	event, cert, err := s.ledger.Receive(ctx, custody.ReceiveParams{
		InstrumentID:    input.InstrumentID,
		LaboratoryID:    input.LaboratoryID,
		LabName:         labName,
		CertificateLink: input.CertificateLink,
		ReceivedAt:      receivedAt,
		RegisteredAt:    s.clock.Now().UTC(),
		ReceiverID:      input.ReceiverID,
		Notes:           input.Notes,
	})
	if err != nil {
		metrics.IncLifecycleError(reason(err))
		return nil, nil, err
	}
	metrics.ObserveLifecycle(string(custody.EventReceivedFromLab), s.clock.Now().Sub(started))
	return event, cert, nil
}

// ListCustody returns a custody page plus the unpaged total.
func (s *Service) ListCustody(ctx context.Context, filter custody.CustodyFilter) ([]custody.CustodyRecord, int, error) {
	return s.ledger.ListCustody(ctx, filter)
}

// LatestCertificate returns the newest certificate of an instrument, or nil.
func (s *Service) LatestCertificate(ctx context.Context, instrumentID int64) (*custody.CalibrationCertificate, error) {
	return s.ledger.LatestCertificate(ctx, instrumentID)
}

// resolveLabName prefers the laboratory record's name when an id is given.
func (s *Service) resolveLabName(ctx context.Context, laboratoryID *int64, explicit string) (string, error) {
	if laboratoryID == nil {
		return explicit, nil
	}
	lab, err := s.directory.GetLaboratory(ctx, *laboratoryID)
	if errors.Is(err, catalog.ErrNotFound) {
		return "", custody.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return lab.Name, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, custody.ErrInstrumentUnavailable):
		return "unavailable"
	case errors.Is(err, custody.ErrNoOpenCustody), errors.Is(err, custody.ErrCustodyMismatch):
		return "custody_mismatch"
	case errors.Is(err, custody.ErrAlreadyAtLab):
		return "already_at_lab"
	case errors.Is(err, custody.ErrConflict):
		return "conflict"
	case errors.Is(err, custody.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
