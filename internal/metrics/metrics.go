package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes used as the "outcome" label
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidIndex       = "invalid_index"
	OutcomeVectorizationError = "vectorization_error"
	OutcomeNoProject          = "no_project"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "segscope",
			Name:      "similarity_queries_total",
			Help:      "Similar-segment queries by outcome",
		},
		[]string{"outcome"},
	)

	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "segscope",
			Name:      "similarity_query_duration_seconds",
			Help:      "Time spent vectorizing and ranking one query",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	candidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "segscope",
			Name:      "similarity_candidates",
			Help:      "Candidates returned per successful query",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)

	corpusDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "segscope",
			Name:      "corpus_documents",
			Help:      "Documents in the corpus of the most recent query",
		},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal)
	prometheus.MustRegister(queryDuration)
	prometheus.MustRegister(candidates)
	prometheus.MustRegister(corpusDocuments)
}

// RecordQuery records one query. corpusSize and found are ignored unless
// the outcome is OutcomeOK.
func RecordQuery(outcome string, elapsed time.Duration, corpusSize, found int) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		candidates.Observe(float64(found))
		corpusDocuments.Set(float64(corpusSize))
	}
}
