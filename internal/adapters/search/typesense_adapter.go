package search

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	tsclient "github.com/LordWorm1996/DormNet/internal/infrastructure/clients/typesense"
)

// TypesenseAdapter implements appliance search using Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements ApplianceSearchRepository
var _ repositories.ApplianceSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// applianceDocument is the indexed shape of an appliance
type applianceDocument struct {
	ID             string `json:"id" mapstructure:"id"`
	Name           string `json:"name" mapstructure:"name"`
	Type           string `json:"type" mapstructure:"type"`
	DefaultUseTime *int   `json:"default_use_time,omitempty" mapstructure:"default_use_time"`
	CreatedAt      int64  `json:"created_at" mapstructure:"created_at"`
}

func toDocument(a *entities.Appliance) applianceDocument {
	return applianceDocument{
		ID:             a.ID,
		Name:           a.Name,
		Type:           a.Type,
		DefaultUseTime: a.DefaultUseTime,
		CreatedAt:      a.CreatedAt.Unix(),
	}
}

// Index upserts an appliance document
func (a *TypesenseAdapter) Index(ctx context.Context, appliance *entities.Appliance) error {
	_, err := a.client.Client().Collection(tsclient.AppliancesCollection).Documents().Upsert(ctx, toDocument(appliance))
	if err != nil {
		return fmt.Errorf("failed to index appliance: %w", err)
	}
	return nil
}

// Search returns the IDs of appliances matching query on name or type
func (a *TypesenseAdapter) Search(ctx context.Context, query string, limit int) ([]string, error) {
	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("name,type"),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(tsclient.AppliancesCollection).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search appliances: %w", err)
	}
	if result.Hits == nil {
		return []string{}, nil
	}

	docs := make([]map[string]interface{}, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document != nil {
			docs = append(docs, *hit.Document)
		}
	}

	decoded, err := decodeDocuments(docs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(decoded))
	for _, d := range decoded {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// decodeDocuments converts raw hit documents, skipping any without an id
func decodeDocuments(raw []map[string]interface{}) ([]applianceDocument, error) {
	out := make([]applianceDocument, 0, len(raw))
	for _, doc := range raw {
		var d applianceDocument
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &d,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to decode appliance document: %w", err)
		}
		if d.ID == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
