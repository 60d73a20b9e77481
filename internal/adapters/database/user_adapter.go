package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

var userColumns = []interface{}{"id", "username", "name", "surname", "email", "role"}

// UserAdapter implements the UserRepository interface over the auth collaborator's users table
type UserAdapter struct {
	client *postgres.Client
}

// NewUserAdapter creates a new user adapter
func NewUserAdapter(client *postgres.Client) repositories.UserRepository {
	return &UserAdapter{client: client}
}

// GetByID retrieves a user by ID
func (a *UserAdapter) GetByID(ctx context.Context, id string) (*entities.User, error) {
	query, args, err := dialect.From("users").
		Select(userColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	user := &entities.User{}
	err = a.client.Do(ctx, "users.get", func(ctx context.Context, db *sql.DB) error {
		err := sqlx.NewDb(db, "postgres").GetContext(ctx, user, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", id))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByIDs retrieves the users that exist among ids
func (a *UserAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.User, error) {
	users := []*entities.User{}
	if len(ids) == 0 {
		return users, nil
	}

	query, args, err := dialect.From("users").
		Select(userColumns...).
		Where(goqu.Ex{"id": ids}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	err = a.client.Do(ctx, "users.get_many", func(ctx context.Context, db *sql.DB) error {
		return sqlx.NewDb(db, "postgres").SelectContext(ctx, &users, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of registered users
func (a *UserAdapter) Count(ctx context.Context) (int, error) {
	return count(ctx, a.client, "users")
}
