package auth

import (
	"context"
	"database/sql"
	"errors"

	catalog "metrology-cloud/internal/catalog/domain"
	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
)

// ErrNotFound indicates the caller's badge matches no employee record.
var ErrNotFound = errors.New("employee not found")

// EmployeeResolver maps a badge from auth claims to an employee record.
type EmployeeResolver interface {
	ResolveBadge(ctx context.Context, badge string) (*catalog.Employee, error)
}

// BadgeResolver resolves badges against the employee directory.
type BadgeResolver struct {
	repo *catalogrepo.ReferenceRepository
}

// NewBadgeResolver constructs a BadgeResolver.
func NewBadgeResolver(db *sql.DB) *BadgeResolver {
	if db == nil {
		return nil
	}
	return &BadgeResolver{repo: catalogrepo.NewReferenceRepository(db)}
}

// ResolveBadge looks up the employee behind a badge.
func (r *BadgeResolver) ResolveBadge(ctx context.Context, badge string) (*catalog.Employee, error) {
	if r == nil || r.repo == nil {
		return nil, ErrNotFound
	}
	if badge == "" {
		return nil, ErrNotFound
	}
	employee, err := r.repo.GetEmployeeByBadge(ctx, badge)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return employee, nil
}
