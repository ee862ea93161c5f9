package postgres

import (
	"context"
	"database/sql"
	"errors"

	analysis "metrology-cloud/internal/analysis/domain"
)

// ResultRepository persists point analyses.
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository constructs a repository.
func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

const resultColumns = `
id, point_id, certificate_id, uncertainty, trend, outcome, notes, analyst_id, created_at`

// Create inserts a point analysis.
func (r *ResultRepository) Create(ctx context.Context, result *analysis.PointAnalysis) error {
	if r == nil || r.db == nil {
		return errors.New("result repo: nil db")
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO point_analyses (point_id, certificate_id, uncertainty, trend, outcome, notes, analyst_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id`,
		result.PointID, result.CertificateID, result.Uncertainty, result.Trend,
		result.Outcome, result.Notes, result.AnalystID, result.CreatedAt,
	).Scan(&result.ID)
}

// ListByPoint returns all analyses of a point, newest first.
func (r *ResultRepository) ListByPoint(ctx context.Context, pointID int64) ([]analysis.PointAnalysis, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("result repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+resultColumns+`
FROM point_analyses
WHERE point_id = $1
ORDER BY created_at DESC, id DESC`, pointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.PointAnalysis
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *result)
	}
	return out, rows.Err()
}

// LatestByPoint returns the newest analysis of a point, or nil when none
// exists.
func (r *ResultRepository) LatestByPoint(ctx context.Context, pointID int64) (*analysis.PointAnalysis, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("result repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+resultColumns+`
FROM point_analyses
WHERE point_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`, pointID)
	result, err := scanResult(row)
	if errors.Is(err, analysis.ErrNotFound) {
		return nil, nil
	}
	return result, err
}

func scanResult(row interface{ Scan(dest ...any) error }) (*analysis.PointAnalysis, error) {
	var result analysis.PointAnalysis
	var certificateID, analystID sql.NullInt64
	var uncertainty sql.NullFloat64
	err := row.Scan(
		&result.ID, &result.PointID, &certificateID, &uncertainty, &result.Trend,
		&result.Outcome, &result.Notes, &analystID, &result.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if certificateID.Valid {
		v := certificateID.Int64
		result.CertificateID = &v
	}
	if analystID.Valid {
		v := analystID.Int64
		result.AnalystID = &v
	}
	if uncertainty.Valid {
		v := uncertainty.Float64
		result.Uncertainty = &v
	}
	result.CreatedAt = result.CreatedAt.UTC()
	return &result, nil
}
