// Package metrics exposes Prometheus collectors for the retrieval, rerank, routing and dialog stages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faq"

// Collectors groups the service's Prometheus instruments. A nil *Collectors is
// valid and records nothing, so components can be built without metrics.
type Collectors struct {
	retrievals    *prometheus.CounterVec
	retrievalTime prometheus.Histogram
	reranks       *prometheus.CounterVec
	warmups       *prometheus.CounterVec
	routes        *prometheus.CounterVec
	turns         *prometheus.CounterVec
	turnTime      prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_results_total",
			Help:      "Hybrid retrieval calls by result status and mock usage.",
		}, []string{"status", "mock"}),
		retrievalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Wall-clock time of hybrid retrieval calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		reranks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_total",
			Help:      "Rerank calls by engine that produced the ordering.",
		}, []string{"engine"}),
		warmups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_warmups_total",
			Help:      "Precision model warm-up attempts by outcome.",
		}, []string{"ok"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Model tier routing decisions.",
		}, []string{"tier"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_turns_total",
			Help:      "Dialog turns by outcome.",
		}, []string{"outcome"}),
		turnTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialog_turn_duration_seconds",
			Help:      "Wall-clock time of dialog turns.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	for _, col := range []prometheus.Collector{
		c.retrievals, c.retrievalTime, c.reranks, c.warmups, c.routes, c.turns, c.turnTime,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collectors) RetrievalCompleted(status string, mock bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	m := "false"
	if mock {
		m = "true"
	}
	c.retrievals.WithLabelValues(status, m).Inc()
	c.retrievalTime.Observe(elapsed.Seconds())
}

func (c *Collectors) RerankCompleted(engine string) {
	if c == nil {
		return
	}
	c.reranks.WithLabelValues(engine).Inc()
}

func (c *Collectors) WarmupAttempted(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.warmups.WithLabelValues("true").Inc()
		return
	}
	c.warmups.WithLabelValues("false").Inc()
}

func (c *Collectors) RouteDecided(tier string) {
	if c == nil {
		return
	}
	c.routes.WithLabelValues(tier).Inc()
}

func (c *Collectors) TurnCompleted(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
	c.turnTime.Observe(elapsed.Seconds())
}
