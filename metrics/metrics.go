package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const psscNamespace = "pssc"

// EscrowMetrics contains instrumented metrics incremented by the escrow
// service using the methods below.
type EscrowMetrics struct {
	numSubmissions prometheus.Counter

	// if disclosures granted+refused stays behind requests received, requests
	// are getting stuck in the pending table
	numDisclosures *prometheus.CounterVec

	numOracleQueriesSent prometheus.Counter
	numOracleResponses   *prometheus.CounterVec

	numDispatchErrors *prometheus.CounterVec
}

func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	return &EscrowMetrics{
		numSubmissions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: psscNamespace,
				Name:      "num_submissions_total",
				Help:      "The number of secret submissions accepted",
			}),

		numDisclosures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: psscNamespace,
				Name:      "num_disclosures_total",
				Help:      "The number of disclosure requests by final outcome",
			}, []string{"outcome"}),

		numOracleQueriesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: psscNamespace,
				Name:      "num_oracle_queries_total",
				Help:      "The number of contract-check queries fanned out to oracles",
			}),

		numOracleResponses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: psscNamespace,
				Name:      "num_oracle_responses_total",
				Help:      "The number of oracle responses by disposition (resolved, vote, stale)",
			}, []string{"disposition"}),

		numDispatchErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: psscNamespace,
				Name:      "num_dispatch_errors_total",
				Help:      "The number of inbound messages converted into an error response",
			}, []string{"kind"}),
	}
}

func (m *EscrowMetrics) IncSubmission() {
	m.numSubmissions.Inc()
}

func (m *EscrowMetrics) IncDisclosure(outcome string) {
	m.numDisclosures.WithLabelValues(outcome).Inc()
}

func (m *EscrowMetrics) IncOracleQuerySent() {
	m.numOracleQueriesSent.Inc()
}

func (m *EscrowMetrics) IncOracleResponse(disposition string) {
	m.numOracleResponses.WithLabelValues(disposition).Inc()
}

func (m *EscrowMetrics) IncDispatchError(kind string) {
	m.numDispatchErrors.WithLabelValues(kind).Inc()
}
