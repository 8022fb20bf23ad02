package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for a run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	EntriesTotal    *prometheus.CounterVec
	SellerLookups   *prometheus.CounterVec
	InferenceTotal  *prometheus.CounterVec
	CheckpointTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seller_scraper_pages_total",
		Help: "Search result pages processed.",
	})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_scraper_entries_total",
		Help: "Search result entries by outcome.",
	}, []string{"outcome"})
	sellers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_scraper_seller_lookups_total",
		Help: "Seller resolutions by result.",
	}, []string{"result"})
	inference := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_scraper_contact_inference_total",
		Help: "Contact inference calls by result.",
	}, []string{"result"})
	checkpoints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_scraper_checkpoints_total",
		Help: "Result file writes by result.",
	}, []string{"result"})

	registry.MustRegister(pages, entries, sellers, inference, checkpoints)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		EntriesTotal:    entries,
		SellerLookups:   sellers,
		InferenceTotal:  inference,
		CheckpointTotal: checkpoints,
	}
}

func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

func (m *Metrics) IncEntry(outcome string) {
	if m == nil {
		return
	}
	m.EntriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSellerLookup(result string) {
	if m == nil {
		return
	}
	m.SellerLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncInference(result string) {
	if m == nil {
		return
	}
	m.InferenceTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCheckpoint(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointTotal.WithLabelValues(result).Inc()
}
