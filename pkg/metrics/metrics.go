package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visual_matcher"

// Prometheus собирает метрики поиска и batch-векторизации в собственном реестре.
type Prometheus struct {
	registry *prometheus.Registry

	matches          *prometheus.CounterVec
	embeddingLatency *prometheus.HistogramVec
	catalogItems     *prometheus.GaugeVec
	batchRows        *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_requests_total",
			Help:      "Total number of match requests by outcome",
		}, []string{"outcome"}),
		embeddingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_embedding_seconds",
			Help:      "Time to obtain a query embedding",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"cache"}),
		catalogItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_items",
			Help:      "Number of catalog items loaded",
		}, []string{"kind"}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Catalog rows processed by the embedding batch job",
		}, []string{"status"}),
	}

	registry.MustRegister(
		p.matches,
		p.embeddingLatency,
		p.catalogItems,
		p.batchRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prometheus) ObserveMatch(outcome string) {
	p.matches.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveEmbedding(d time.Duration, cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	p.embeddingLatency.WithLabelValues(label).Observe(d.Seconds())
}

func (p *Prometheus) SetCatalogSize(total, valid int) {
	p.catalogItems.WithLabelValues("total").Set(float64(total))
	p.catalogItems.WithLabelValues("valid").Set(float64(valid))
}

func (p *Prometheus) ObserveBatchRow(status string) {
	p.batchRows.WithLabelValues(status).Inc()
}

// BatchRowCounts возвращает текущие значения batch_rows_total по статусам.
func (p *Prometheus) BatchRowCounts() (map[string]float64, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != namespace+"_batch_rows_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}

	return counts, nil
}

// Handler отдаёт метрики в формате Prometheus.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
