package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sajagana/pcvgate/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, error)
}

// RunFilter narrows the audit-trail listing.
type RunFilter struct {
	TenantID      uuid.UUID
	InsightsGroup string
	JobName       string
	Limit         int
}
