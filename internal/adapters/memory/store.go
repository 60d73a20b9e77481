// Package memory holds process-local repositories used for tests and
// STORE_DRIVER=memory runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// Store keeps appliances, users and reservations behind one lock
type Store struct {
	mu           sync.RWMutex
	appliances   map[string]*entities.Appliance
	users        map[string]*entities.User
	reservations map[string]*entities.Reservation
	now          func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		appliances:   make(map[string]*entities.Appliance),
		users:        make(map[string]*entities.User),
		reservations: make(map[string]*entities.Reservation),
		now:          time.Now,
	}
}

// SetClock overrides the clock used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutAppliance inserts or replaces an appliance
func (s *Store) PutAppliance(a *entities.Appliance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.appliances[a.ID] = &cp
}

// PutUser inserts or replaces a user
func (s *Store) PutUser(u *entities.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// Reservations returns the reservation repository view
func (s *Store) Reservations() repositories.ReservationRepository {
	return reservationRepo{s}
}

// Appliances returns the appliance repository view
func (s *Store) Appliances() repositories.ApplianceRepository {
	return applianceRepo{s}
}

// Users returns the user repository view
func (s *Store) Users() repositories.UserRepository {
	return userRepo{s}
}

type reservationRepo struct{ s *Store }

// CreateIfAvailable holds the write lock across the overlap check and the insert
func (r reservationRepo) CreateIfAvailable(ctx context.Context, res *entities.Reservation) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreUnavailableError("request cancelled", err)
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appliances[res.ApplianceID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("appliance with id %s not found", res.ApplianceID))
	}

	if res.Status == "" {
		res.Status = entities.ReservationStatusActive
	}
	if res.IsActive() {
		for _, existing := range s.reservations {
			if existing.ConflictsWith(res.ApplianceID, res.Interval()) {
				return apperrors.NewConflictError(fmt.Sprintf("appliance %s is already reserved for an overlapping time slot", res.ApplianceID))
			}
		}
	}

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if _, exists := s.reservations[res.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("reservation with id %s already exists", res.ID))
	}
	now := s.now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now

	s.reservations[res.ID] = res.Clone()
	return nil
}

func (r reservationRepo) GetByID(_ context.Context, id string) (*entities.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res, ok := r.s.reservations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
	}
	return res.Clone(), nil
}

func (r reservationRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reservations[id]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
	}
	delete(r.s.reservations, id)
	return nil
}

func (r reservationRepo) FindOverlapping(_ context.Context, applianceID string, span entities.Interval) ([]*entities.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.Reservation{}
	for _, res := range r.s.reservations {
		if res.ConflictsWith(applianceID, span) {
			out = append(out, res.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

func (r reservationRepo) List(_ context.Context, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.Reservation{}
	for _, res := range r.s.reservations {
		if filter.Matches(res) {
			out = append(out, res.Clone())
		}
	}
	sortByStart(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entities.Reservation{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r reservationRepo) CountActive(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, res := range r.s.reservations {
		if res.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r reservationRepo) CompleteEnded(_ context.Context, now time.Time) ([]*entities.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*entities.Reservation{}
	for _, res := range r.s.reservations {
		if res.IsActive() && !res.EndTime.After(now) {
			res.Status = entities.ReservationStatusCompleted
			res.UpdatedAt = now.UTC()
			out = append(out, res.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

type applianceRepo struct{ s *Store }

func (r applianceRepo) GetByID(_ context.Context, id string) (*entities.Appliance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appliances[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("appliance with id %s not found", id))
	}
	cp := *a
	cp.Status = entities.ApplianceStatusAvailable
	return &cp, nil
}

func (r applianceRepo) GetByIDs(_ context.Context, ids []string) ([]*entities.Appliance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.Appliance{}
	for _, id := range ids {
		if a, ok := r.s.appliances[id]; ok {
			cp := *a
			cp.Status = entities.ApplianceStatusAvailable
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r applianceRepo) List(_ context.Context) ([]*entities.Appliance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*entities.Appliance, 0, len(r.s.appliances))
	for _, a := range r.s.appliances {
		cp := *a
		cp.Status = entities.ApplianceStatusAvailable
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r applianceRepo) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.appliances), nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (*entities.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", id))
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByIDs(_ context.Context, ids []string) ([]*entities.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.User{}
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r userRepo) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

func sortByStart(rs []*entities.Reservation) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].StartTime.Equal(rs[j].StartTime) {
			return rs[i].StartTime.Before(rs[j].StartTime)
		}
		return rs[i].ID < rs[j].ID
	})
}
