package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, p *Prometheus) string {
	t.Helper()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus()

	p.ObserveMatch("matched")
	p.ObserveMatch("matched")
	p.ObserveMatch("no_match")
	p.ObserveBatchRow("failed")
	p.SetCatalogSize(10, 7)
	p.ObserveEmbedding(20*time.Millisecond, true)

	body := scrape(t, p)
	assert.Contains(t, body, `visual_matcher_match_requests_total{outcome="matched"} 2`)
	assert.Contains(t, body, `visual_matcher_match_requests_total{outcome="no_match"} 1`)
	assert.Contains(t, body, `visual_matcher_batch_rows_total{status="failed"} 1`)
	assert.Contains(t, body, `visual_matcher_catalog_items{kind="total"} 10`)
	assert.Contains(t, body, `visual_matcher_catalog_items{kind="valid"} 7`)
	assert.Contains(t, body, `visual_matcher_query_embedding_seconds_count{cache="hit"} 1`)
}

func TestPrometheus_OwnRegistry(t *testing.T) {
	a, b := NewPrometheus(), NewPrometheus()
	a.ObserveMatch("error")

	assert.Contains(t, scrape(t, a), `outcome="error"`)
	assert.NotContains(t, scrape(t, b), `outcome="error"`)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPrometheus_BatchRowCounts(t *testing.T) {
	p := NewPrometheus()

	counts, err := p.BatchRowCounts()
	require.NoError(t, err)
	assert.Empty(t, counts)

	p.ObserveBatchRow("embedded")
	p.ObserveBatchRow("embedded")
	p.ObserveBatchRow("failed")
	p.ObserveMatch("matched")

	counts, err = p.BatchRowCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"embedded": 2, "failed": 1}, counts)
}
