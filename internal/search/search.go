// Package search indexe le catalogue dans Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
)

const DefaultIndex = "products"

var ErrUnavailable = errors.New("index de recherche indisponible")

// Index est implémenté par Elastic; le catalogue retombe sur le store si nil.
type Index interface {
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

type Elastic struct {
	client *elasticsearch.Client
	index  string
}

func NewElastic(client *elasticsearch.Client, index string) *Elastic {
	if index == "" {
		index = DefaultIndex
	}
	return &Elastic{client: client, index: index}
}

type document struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Composition          string   `json:"composition"`
	Manufacturer         string   `json:"manufacturer"`
	Tags                 []string `json:"tags"`
	CategoryID           string   `json:"category_id"`
	RequiresPrescription bool     `json:"requires_prescription"`
	IsActive             bool     `json:"is_active"`
}

func (e *Elastic) IndexProduct(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(document{
		Name:                 p.Name,
		Description:          p.Description,
		Composition:          p.Composition,
		Manufacturer:         p.Manufacturer,
		Tags:                 p.Tags,
		CategoryID:           p.CategoryID.String(),
		RequiresPrescription: p.RequiresPrescription,
		IsActive:             p.IsActive,
	})
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: p.ID.String(),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexation %s: %s", p.Name, res.String())
	}
	log.Printf("✅ Produit indexé dans Elasticsearch: %s", p.Name)
	return nil
}

func (e *Elastic) DeleteProduct(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: e.index, DocumentID: id, Refresh: "true"}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("suppression index %s: %s", id, res.String())
	}
	return nil
}

// Search renvoie les IDs des produits actifs correspondant, par pertinence.
func (e *Elastic) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	var buf bytes.Buffer
	q := map[string]any{
		"size":    limit,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"name^3", "composition^2", "description", "tags", "manufacturer"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"is_active": true},
				},
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("erreur encodage requête: %w", err)
	}

	req := esapi.SearchRequest{Index: []string{e.index}, Body: &buf}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("erreur décodage JSON: %w", err)
	}

	ids := make([]string, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
