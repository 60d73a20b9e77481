package repositories

import (
	"context"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

// UserRepository is the read side of the user directory
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// GetByIDs retrieves the users that exist among ids
	GetByIDs(ctx context.Context, ids []string) ([]*entities.User, error)

	// Count returns the number of registered users
	Count(ctx context.Context) (int, error)
}
