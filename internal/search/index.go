package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"github.com/tolmv/elasticsearch/internal/domain"
)

// maxSimilar caps the number of similarity links per product.
const maxSimilar = 5

// BulkFailure describes one document rejected inside a bulk request.
type BulkFailure struct {
	UUID   string
	Reason string
}

// BulkResult reports the outcome of a bulk upsert. Per-document failures do
// not fail the batch as a whole.
type BulkResult struct {
	Indexed int
	Failed  []BulkFailure
}

// ProductIndex is the search-engine side of the dual write. It holds a
// denormalized copy of the catalog used only for similarity queries.
type ProductIndex interface {
	// EnsureIndex creates the product index with its fixed mapping if absent.
	// A creation race between concurrent runs is logged, not fatal.
	EnsureIndex(ctx context.Context) error
	// UpsertBatch bulk-indexes documents keyed by product uuid.
	UpsertBatch(ctx context.Context, products []domain.Product) (*BulkResult, error)
	// FindSimilar returns up to five ids of textually similar products,
	// never including the queried id. An empty id yields an empty result.
	FindSimilar(ctx context.Context, productUUID string) ([]string, error)
	Ping(ctx context.Context) error
	Close()
}

type productIndex struct {
	es        *elasticsearch.Client
	index     string
	rl        ratelimit.Limiter
	transport *http.Transport
}

// New builds a ProductIndex against the given endpoint. roundTripper
// overrides the HTTP transport when non-nil (used by tests).
func New(cfg Config, roundTripper http.RoundTripper) (ProductIndex, error) {
	transport := &http.Transport{}
	if roundTripper == nil {
		roundTripper = transport
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Transport: roundTripper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &productIndex{
		es:        es,
		index:     cfg.Index,
		rl:        rl,
		transport: transport,
	}, nil
}

// Config holds the search endpoint settings the index needs.
type Config struct {
	URL                  string
	Index                string
	MaxRequestsPerSecond int
}

func (i *productIndex) Ping(ctx context.Context) error {
	res, err := i.es.Info(i.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to reach elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch info error: %s", res.Status())
	}
	return nil
}

func (i *productIndex) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists(
		[]string{i.index},
		i.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check index %q: %w", i.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		log.Infof("Index %q already exists", i.index)
		return nil
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("failed to check index %q: %s", i.index, res.Status())
	}

	createRes, err := i.es.Indices.Create(
		i.index,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(productMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %q: %w", i.index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		// another run may have created it between the exists check and now
		log.Errorf("Failed to create index %q: %s", i.index, createRes.String())
		return nil
	}

	log.Infof("Index %q created successfully", i.index)
	return nil
}

func (i *productIndex) UpsertBatch(ctx context.Context, products []domain.Product) (*BulkResult, error) {
	if len(products) == 0 {
		return &BulkResult{}, nil
	}

	var buf bytes.Buffer
	for _, p := range products {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, i.index, p.UUID)
		buf.WriteString(meta)
		buf.WriteByte('\n')

		doc, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal product %s: %w", p.UUID, err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := i.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		i.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk index products: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("bulk request error: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	result := &BulkResult{}
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Status < http.StatusMultipleChoices {
				result.Indexed++
				continue
			}
			failure := BulkFailure{UUID: op.ID}
			if op.Error != nil {
				failure.Reason = op.Error.Reason
			}
			result.Failed = append(result.Failed, failure)
		}
	}

	log.Infof("Indexed %d products in Elasticsearch", result.Indexed)
	for _, failure := range result.Failed {
		log.Errorf("Failed to index product %s: %s", failure.UUID, failure.Reason)
	}

	return result, nil
}

func (i *productIndex) FindSimilar(ctx context.Context, productUUID string) ([]string, error) {
	if productUUID == "" {
		return nil, nil
	}

	query := map[string]any{
		"query": map[string]any{
			"more_like_this": map[string]any{
				"fields": []string{"title", "description", "brand"},
				"like": []map[string]string{{
					"_index": i.index,
					"_id":    productUUID,
				}},
				"min_term_freq":   1,
				"max_query_terms": 12,
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal similarity query: %w", err)
	}

	i.rl.Take()

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(bytes.NewReader(body)),
		i.es.Search.WithSize(maxSimilar),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar products for %s: %w", productUUID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("similarity query error for %s: %s", productUUID, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode similarity response: %w", err)
	}

	similar := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.ID == productUUID {
			continue
		}
		similar = append(similar, hit.ID)
	}
	return similar, nil
}

func (i *productIndex) Close() {
	i.transport.CloseIdleConnections()
}

type bulkResponse struct {
	Errors bool                      `json:"errors"`
	Items  []map[string]bulkItemInfo `json:"items"`
}

type bulkItemInfo struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}
