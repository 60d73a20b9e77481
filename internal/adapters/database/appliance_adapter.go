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

var applianceColumns = []interface{}{
	"id", "name", "type", "default_use_time", "created_at", "updated_at",
}

// ApplianceAdapter implements the ApplianceRepository interface
type ApplianceAdapter struct {
	client *postgres.Client
}

// NewApplianceAdapter creates a new appliance adapter
func NewApplianceAdapter(client *postgres.Client) repositories.ApplianceRepository {
	return &ApplianceAdapter{client: client}
}

// GetByID retrieves an appliance by ID
func (a *ApplianceAdapter) GetByID(ctx context.Context, id string) (*entities.Appliance, error) {
	query, args, err := dialect.From("appliances").
		Select(applianceColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	appliance := &entities.Appliance{}
	err = a.client.Do(ctx, "appliances.get", func(ctx context.Context, db *sql.DB) error {
		err := sqlx.NewDb(db, "postgres").GetContext(ctx, appliance, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("appliance with id %s not found", id))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	appliance.Status = entities.ApplianceStatusAvailable
	return appliance, nil
}

// GetByIDs retrieves the appliances that exist among ids
func (a *ApplianceAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Appliance, error) {
	if len(ids) == 0 {
		return []*entities.Appliance{}, nil
	}
	query, args, err := dialect.From("appliances").
		Select(applianceColumns...).
		Where(goqu.Ex{"id": ids}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.selectAppliances(ctx, "appliances.get_many", query, args)
}

// List returns every appliance ordered by name
func (a *ApplianceAdapter) List(ctx context.Context) ([]*entities.Appliance, error) {
	query, args, err := dialect.From("appliances").
		Select(applianceColumns...).
		Order(goqu.I("name").Asc(), goqu.I("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.selectAppliances(ctx, "appliances.list", query, args)
}

// Count returns the number of appliances
func (a *ApplianceAdapter) Count(ctx context.Context) (int, error) {
	return count(ctx, a.client, "appliances")
}

func (a *ApplianceAdapter) selectAppliances(ctx context.Context, operation, query string, args []interface{}) ([]*entities.Appliance, error) {
	appliances := []*entities.Appliance{}
	err := a.client.Do(ctx, operation, func(ctx context.Context, db *sql.DB) error {
		return sqlx.NewDb(db, "postgres").SelectContext(ctx, &appliances, query, args...)
	})
	if err != nil {
		return nil, err
	}
	for _, appliance := range appliances {
		appliance.Status = entities.ApplianceStatusAvailable
	}
	return appliances, nil
}

func count(ctx context.Context, client *postgres.Client, table string) (int, error) {
	query, args, err := dialect.From(table).
		Select(goqu.COUNT(goqu.Star())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var n int
	err = client.Do(ctx, table+".count", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	return n, err
}
