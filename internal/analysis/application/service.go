package application

import (
	"context"
	"errors"
	"time"

	analysis "metrology-cloud/internal/analysis/domain"
	catalog "metrology-cloud/internal/catalog/domain"
	custody "metrology-cloud/internal/custody/domain"
	"metrology-cloud/internal/observability/metrics"
)

// ResultRepository persists point analyses.
type ResultRepository interface {
	Create(ctx context.Context, result *analysis.PointAnalysis) error
	ListByPoint(ctx context.Context, pointID int64) ([]analysis.PointAnalysis, error)
}

// PointReader resolves calibration points to their instrument.
type PointReader interface {
	Get(ctx context.Context, id int64) (*catalog.CalibrationPoint, error)
}

// CertificateReader finds the newest certificate of an instrument.
type CertificateReader interface {
	LatestCertificate(ctx context.Context, instrumentID int64) (*custody.CalibrationCertificate, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// RecordInput describes one point analysis entry. CreatedAt is optional and
// supports backdated historical imports.
type RecordInput struct {
	PointID     int64
	Uncertainty *float64
	Trend       string
	Outcome     string
	Notes       string
	AnalystID   *int64
	CreatedAt   *time.Time
}

// Service records calibration point analyses.
type Service struct {
	results      ResultRepository
	points       PointReader
	certificates CertificateReader
	clock        Clock
}

// ServiceOption customizes the analysis service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs an analysis service.
func NewService(results ResultRepository, points PointReader, certificates CertificateReader, opts ...ServiceOption) (*Service, error) {
	if results == nil || points == nil || certificates == nil {
		return nil, errors.New("analysis: nil dependency")
	}
	service := &Service{
		results:      results,
		points:       points,
		certificates: certificates,
		clock:        systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Record stores one analysis, linking the instrument's newest certificate
// when one exists. A missing certificate never blocks recording.
func (s *Service) Record(ctx context.Context, input RecordInput) (*analysis.PointAnalysis, error) {
	outcome, ok := analysis.NormalizeOutcome(input.Outcome)
	if !ok {
		return nil, analysis.ErrInvalidOutcome
	}
	point, err := s.points.Get(ctx, input.PointID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	createdAt := s.clock.Now().UTC()
	if input.CreatedAt != nil && !input.CreatedAt.IsZero() {
		createdAt = input.CreatedAt.UTC()
	}

	result := &analysis.PointAnalysis{
		PointID:     point.ID,
		Uncertainty: input.Uncertainty,
		Trend:       input.Trend,
		Outcome:     outcome,
		Notes:       input.Notes,
		AnalystID:   input.AnalystID,
		CreatedAt:   createdAt,
	}
	if cert, certErr := s.certificates.LatestCertificate(ctx, point.InstrumentID); certErr == nil && cert != nil {
		id := cert.ID
		result.CertificateID = &id
	}

	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}
	metrics.IncAnalysisResult(string(outcome))
	return result, nil
}

// History returns all analyses of a point, newest first.
func (s *Service) History(ctx context.Context, pointID int64) ([]analysis.PointAnalysis, error) {
	if _, err := s.points.Get(ctx, pointID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, analysis.ErrNotFound
		}
		return nil, err
	}
	return s.results.ListByPoint(ctx, pointID)
}
