package analysis

import (
	"errors"
	"time"
)

// Outcome is the pass/fail verdict of a point analysis.
type Outcome string

const (
	OutcomeApproved    Outcome = "approved"
	OutcomeRejected    Outcome = "rejected"
	OutcomeConditional Outcome = "conditional"
	// OutcomeUnset marks a recorded analysis awaiting a verdict.
	OutcomeUnset Outcome = ""
)

// NormalizeOutcome validates an outcome string.
func NormalizeOutcome(value string) (Outcome, bool) {
	switch Outcome(value) {
	case OutcomeApproved, OutcomeRejected, OutcomeConditional, OutcomeUnset:
		return Outcome(value), true
	default:
		return "", false
	}
}

// PointAnalysis is one recorded analysis of a calibration point. Several may
// exist per point over time; compliance looks at the latest per point. The
// certificate reference is best-effort and survives certificate removal.
type PointAnalysis struct {
	ID            int64
	PointID       int64
	CertificateID *int64
	Uncertainty   *float64
	Trend         string
	Outcome       Outcome
	Notes         string
	AnalystID     *int64
	CreatedAt     time.Time
}

var (
	// ErrNotFound is returned when a referenced point does not exist.
	ErrNotFound = errors.New("analysis: not found")
	// ErrInvalidOutcome is returned for outcomes outside the known set.
	ErrInvalidOutcome = errors.New("analysis: invalid outcome")
)
