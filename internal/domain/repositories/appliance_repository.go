package repositories

import (
	"context"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

// ApplianceRepository is the read side of the appliance directory.
// Appliance records are owned by the admin surface; this service only reads them.
type ApplianceRepository interface {
	// GetByID retrieves an appliance by ID
	GetByID(ctx context.Context, id string) (*entities.Appliance, error)

	// GetByIDs retrieves the appliances that exist among ids
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Appliance, error)

	// List returns every appliance ordered by name
	List(ctx context.Context) ([]*entities.Appliance, error)

	// Count returns the number of appliances
	Count(ctx context.Context) (int, error)
}

// ApplianceSearchRepository indexes appliances for free-text search
type ApplianceSearchRepository interface {
	// Index upserts an appliance document
	Index(ctx context.Context, appliance *entities.Appliance) error

	// Search returns appliance IDs matching the query, best match first
	Search(ctx context.Context, query string, limit int) ([]string, error)
}
