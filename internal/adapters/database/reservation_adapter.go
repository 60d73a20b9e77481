package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

const (
	reservationsTable = "reservations"

	pqExclusionViolation  = pq.ErrorCode("23P01")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

var dialect = goqu.Dialect("postgres")

var reservationColumns = []interface{}{
	"id", "appliance_id", "user_id", "start_time", "end_time",
	"status", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ReservationAdapter implements the ReservationRepository interface on PostgreSQL
type ReservationAdapter struct {
	client *postgres.Client
	now    func() time.Time
}

// NewReservationAdapter creates a new reservation adapter
func NewReservationAdapter(client *postgres.Client) repositories.ReservationRepository {
	return &ReservationAdapter{client: client, now: time.Now}
}

// CreateIfAvailable locks the appliance row, checks for overlapping active
// reservations and inserts, all in one transaction. The exclusion constraint
// on the table rejects anything that slips past the check.
func (a *ReservationAdapter) CreateIfAvailable(ctx context.Context, r *entities.Reservation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := a.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = entities.ReservationStatusActive
	}

	lockQuery, lockArgs, err := dialect.From("appliances").
		Select("id").
		Where(goqu.Ex{"id": r.ApplianceID}).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build lock query", err)
	}

	overlapQuery, overlapArgs, err := overlapDataset(r.ApplianceID, r.Interval()).
		Select("id").
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build overlap query", err)
	}

	insertQuery, insertArgs, err := dialect.Insert(reservationsTable).
		Rows(goqu.Record{
			"id":           r.ID,
			"appliance_id": r.ApplianceID,
			"user_id":      r.UserID,
			"start_time":   r.StartTime.UTC(),
			"end_time":     r.EndTime.UTC(),
			"status":       string(r.Status),
			"created_at":   r.CreatedAt,
			"updated_at":   r.UpdatedAt,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	return a.client.InTx(ctx, "reservations.create", nil, func(ctx context.Context, tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, lockQuery, lockArgs...).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("appliance with id %s not found", r.ApplianceID))
		}
		if err != nil {
			return err
		}

		if r.IsActive() {
			var conflicting string
			err = tx.QueryRowContext(ctx, overlapQuery, overlapArgs...).Scan(&conflicting)
			if err == nil {
				return apperrors.NewConflictError(fmt.Sprintf("appliance %s is already reserved for an overlapping time slot", r.ApplianceID))
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return translateWriteError(err, r.ApplianceID)
		}
		return nil
	})
}

// GetByID retrieves a reservation by ID
func (a *ReservationAdapter) GetByID(ctx context.Context, id string) (*entities.Reservation, error) {
	query, args, err := dialect.From(reservationsTable).
		Select(reservationColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var reservation *entities.Reservation
	err = a.client.Do(ctx, "reservations.get", func(ctx context.Context, db *sql.DB) error {
		r, err := scanReservation(db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
		}
		if err != nil {
			return err
		}
		reservation = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Delete hard-deletes a reservation
func (a *ReservationAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := dialect.Delete(reservationsTable).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	return a.client.Do(ctx, "reservations.delete", func(ctx context.Context, db *sql.DB) error {
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
		}
		return nil
	})
}

// FindOverlapping returns the active reservations of an appliance that overlap span
func (a *ReservationAdapter) FindOverlapping(ctx context.Context, applianceID string, span entities.Interval) ([]*entities.Reservation, error) {
	query, args, err := overlapDataset(applianceID, span).
		Select(reservationColumns...).
		Order(goqu.I("start_time").Asc(), goqu.I("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build overlap query", err)
	}
	return a.query(ctx, "reservations.find_overlapping", query, args)
}

// List returns reservations overlapping the filter range ordered by start time
func (a *ReservationAdapter) List(ctx context.Context, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	ds := dialect.From(reservationsTable).
		Select(reservationColumns...).
		Where(
			goqu.C("start_time").Lt(filter.RangeEnd.UTC()),
			goqu.C("end_time").Gt(filter.RangeStart.UTC()),
		)

	if filter.ApplianceID != "" {
		ds = ds.Where(goqu.Ex{"appliance_id": filter.ApplianceID})
	}
	if filter.UserID != "" {
		ds = ds.Where(goqu.Ex{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}

	ds = ds.Order(goqu.I("start_time").Asc(), goqu.I("id").Asc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}
	return a.query(ctx, "reservations.list", query, args)
}

// CountActive counts reservations in the active state
func (a *ReservationAdapter) CountActive(ctx context.Context) (int, error) {
	query, args, err := dialect.From(reservationsTable).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{"status": string(entities.ReservationStatusActive)}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var count int
	err = a.client.Do(ctx, "reservations.count_active", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, query, args...).Scan(&count)
	})
	return count, err
}

// CompleteEnded moves active reservations that ended at or before now to completed
func (a *ReservationAdapter) CompleteEnded(ctx context.Context, now time.Time) ([]*entities.Reservation, error) {
	query, args, err := dialect.Update(reservationsTable).
		Set(goqu.Record{
			"status":     string(entities.ReservationStatusCompleted),
			"updated_at": now.UTC(),
		}).
		Where(
			goqu.Ex{"status": string(entities.ReservationStatusActive)},
			goqu.C("end_time").Lte(now.UTC()),
		).
		Returning(reservationColumns...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build complete query", err)
	}
	return a.query(ctx, "reservations.complete_ended", query, args)
}

func (a *ReservationAdapter) query(ctx context.Context, operation, query string, args []interface{}) ([]*entities.Reservation, error) {
	reservations := []*entities.Reservation{}
	err := a.client.Do(ctx, operation, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanReservation(rows)
			if err != nil {
				return err
			}
			reservations = append(reservations, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// overlapDataset selects active reservations of applianceID with start < span.End and end > span.Start
func overlapDataset(applianceID string, span entities.Interval) *goqu.SelectDataset {
	return dialect.From(reservationsTable).Where(
		goqu.Ex{
			"appliance_id": applianceID,
			"status":       string(entities.ReservationStatusActive),
		},
		goqu.C("start_time").Lt(span.End.UTC()),
		goqu.C("end_time").Gt(span.Start.UTC()),
	)
}

func scanReservation(row rowScanner) (*entities.Reservation, error) {
	r := &entities.Reservation{}
	err := row.Scan(
		&r.ID,
		&r.ApplianceID,
		&r.UserID,
		&r.StartTime,
		&r.EndTime,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return nil, apperrors.NewInternalError("stored reservation is invalid", err)
	}
	if err != nil {
		return nil, err
	}
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
	return r, nil
}

func translateWriteError(err error, applianceID string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqExclusionViolation:
		return apperrors.NewConflictError(fmt.Sprintf("appliance %s is already reserved for an overlapping time slot", applianceID))
	case pqForeignKeyViolation:
		if strings.Contains(pqErr.Constraint, "user") {
			return apperrors.NewNotFoundError("user not found")
		}
		return apperrors.NewNotFoundError(fmt.Sprintf("appliance with id %s not found", applianceID))
	}
	return err
}
