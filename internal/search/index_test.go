package search

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolmv/elasticsearch/internal/domain"
)

// stubTransport answers the client's product check itself and delegates
// everything else to handle, recording each API request.
type stubTransport struct {
	handle   func(*http.Request) *http.Response
	requests []*http.Request
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == "/" && req.Method == http.MethodGet {
		return jsonResponse(http.StatusOK,
			`{"version":{"number":"8.17.1","build_flavor":"default"},"tagline":"You Know, for Search"}`), nil
	}
	s.requests = append(s.requests, req)
	return s.handle(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

func newTestIndex(t *testing.T, handle func(*http.Request) *http.Response) (ProductIndex, *stubTransport) {
	t.Helper()

	transport := &stubTransport{handle: handle}
	index, err := New(Config{URL: "http://localhost:9200", Index: "products"}, transport)
	require.NoError(t, err)
	return index, transport
}

func TestEnsureIndexSkipsCreateWhenPresent(t *testing.T) {
	index, transport := newTestIndex(t, func(req *http.Request) *http.Response {
		require.Equal(t, http.MethodHead, req.Method)
		require.Equal(t, "/products", req.URL.Path)
		return jsonResponse(http.StatusOK, "")
	})

	require.NoError(t, index.EnsureIndex(context.Background()))
	assert.Len(t, transport.requests, 1)
}

func TestEnsureIndexCreatesWhenAbsent(t *testing.T) {
	index, transport := newTestIndex(t, func(req *http.Request) *http.Response {
		if req.Method == http.MethodHead {
			return jsonResponse(http.StatusNotFound, "")
		}
		require.Equal(t, http.MethodPut, req.Method)
		require.Equal(t, "/products", req.URL.Path)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"price_after_discounts": {"type": "float"}`)

		return jsonResponse(http.StatusOK, `{"acknowledged":true,"index":"products"}`)
	})

	require.NoError(t, index.EnsureIndex(context.Background()))
	assert.Len(t, transport.requests, 2)
}

func TestEnsureIndexClusterErrorOnExistsCheckIsFatal(t *testing.T) {
	index, transport := newTestIndex(t, func(req *http.Request) *http.Response {
		require.Equal(t, http.MethodHead, req.Method)
		return jsonResponse(http.StatusInternalServerError, "")
	})

	err := index.EnsureIndex(context.Background())
	assert.Error(t, err)
	// an unreachable cluster must not be mistaken for a missing index
	assert.Len(t, transport.requests, 1)
}

func TestEnsureIndexToleratesCreationRace(t *testing.T) {
	index, _ := newTestIndex(t, func(req *http.Request) *http.Response {
		if req.Method == http.MethodHead {
			return jsonResponse(http.StatusNotFound, "")
		}
		return jsonResponse(http.StatusBadRequest,
			`{"error":{"type":"resource_already_exists_exception"}}`)
	})

	assert.NoError(t, index.EnsureIndex(context.Background()))
}

func TestUpsertBatchReportsPartialFailures(t *testing.T) {
	var bulkBody string
	index, _ := newTestIndex(t, func(req *http.Request) *http.Response {
		require.Equal(t, "/_bulk", req.URL.Path)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		bulkBody = string(body)

		return jsonResponse(http.StatusOK, `{
			"errors": true,
			"items": [
				{"index": {"_id": "p1", "status": 201}},
				{"index": {"_id": "p2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed to parse"}}},
				{"index": {"_id": "p3", "status": 200}}
			]
		}`)
	})

	result, err := index.UpsertBatch(context.Background(), []domain.Product{
		{UUID: "p1"}, {UUID: "p2"}, {UUID: "p3"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Indexed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "p2", result.Failed[0].UUID)
	assert.Equal(t, "failed to parse", result.Failed[0].Reason)

	assert.Contains(t, bulkBody, `"_id":"p1"`)
	assert.Contains(t, bulkBody, `"_id":"p3"`)
}

func TestUpsertBatchEmptyInputSkipsRequest(t *testing.T) {
	index, transport := newTestIndex(t, func(*http.Request) *http.Response {
		t.Fatal("no request expected")
		return nil
	})

	result, err := index.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)
	assert.Empty(t, transport.requests)
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	index, transport := newTestIndex(t, func(req *http.Request) *http.Response {
		require.Equal(t, "/products/_search", req.URL.Path)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"more_like_this"`)
		assert.Contains(t, string(body), `"min_term_freq":1`)
		assert.Contains(t, string(body), `"max_query_terms":12`)

		return jsonResponse(http.StatusOK, `{
			"hits": {"hits": [
				{"_id": "self"},
				{"_id": "a"},
				{"_id": "b"},
				{"_id": "c"}
			]}
		}`)
	})

	similar, err := index.FindSimilar(context.Background(), "self")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, similar)
	assert.NotContains(t, similar, "self")
	assert.LessOrEqual(t, len(similar), 5)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "5", transport.requests[0].URL.Query().Get("size"))
}

func TestFindSimilarEmptyIDReturnsNothing(t *testing.T) {
	index, transport := newTestIndex(t, func(*http.Request) *http.Response {
		t.Fatal("no request expected")
		return nil
	})

	similar, err := index.FindSimilar(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, similar)
	assert.Empty(t, transport.requests)
}

func TestFindSimilarQueryErrorPropagates(t *testing.T) {
	index, _ := newTestIndex(t, func(*http.Request) *http.Response {
		return jsonResponse(http.StatusInternalServerError, `{"error":"boom"}`)
	})

	_, err := index.FindSimilar(context.Background(), "p1")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	index, _ := newTestIndex(t, func(*http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{}`)
	})

	assert.NoError(t, index.Ping(context.Background()))
}
