package loaders

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

type ctxKey string

const loadersKey ctxKey = "dataloaders"

// Loaders batches the directory lookups needed to decorate listed reservations
type Loaders struct {
	ApplianceLoader *dataloader.Loader[string, *entities.Appliance]
	UserLoader      *dataloader.Loader[string, *entities.User]
}

// NewLoaders creates a new instance of Loaders.
// Unknown IDs resolve to nil without error; a failed batch fails every key in it.
func NewLoaders(appliances repositories.ApplianceRepository, users repositories.UserRepository) *Loaders {
	return &Loaders{
		ApplianceLoader: dataloader.NewBatchedLoader(
			batch(appliances.GetByIDs, func(a *entities.Appliance) string { return a.ID }),
		),
		UserLoader: dataloader.NewBatchedLoader(
			batch(users.GetByIDs, func(u *entities.User) string { return u.ID }),
		),
	}
}

func batch[V any](fetch func(context.Context, []string) ([]V, error), idOf func(V) string) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		results := make([]*dataloader.Result[V], len(keys))
		found, err := fetch(ctx, keys)

		byID := make(map[string]V, len(found))
		if err == nil {
			for _, v := range found {
				byID[idOf(v)] = v
			}
		}

		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result[V]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[V]{Data: byID[key]}
		}
		return results
	}
}

// For returns the loaders attached to ctx, or nil
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(loadersKey).(*Loaders)
	return l
}

// WithLoaders returns a new context with the loaders attached
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}
