package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for concierge chat turns.
type ChatMetrics struct {
	turnsTotal        *prometheus.CounterVec
	intentsTotal      *prometheus.CounterVec
	extractionFailed  *prometheus.CounterVec
	matchOutcomes     *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	rejectedTurnTotal *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by reply state and outcome",
		}, []string{"state", "status"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "intents_total",
			Help:      "Classified customer intents",
		}, []string{"intent"}),
		extractionFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "extraction_failures_total",
			Help:      "Preference extraction calls that failed after retry, by field",
		}, []string{"field"}),
		matchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "inventory_match_total",
			Help:      "Inventory match results",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "Time from accepted message to the end of the reply stream",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60},
		}, []string{"state"}),
		rejectedTurnTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "chat",
			Name:      "rejected_turns_total",
			Help:      "Turns rejected before processing",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.intentsTotal, m.extractionFailed, m.matchOutcomes, m.turnLatency, m.rejectedTurnTotal)
	return m
}

func (m *ChatMetrics) ObserveTurn(state, status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, status).Inc()
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

func (m *ChatMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent).Inc()
}

func (m *ChatMetrics) ObserveExtractionFailure(field string) {
	if m == nil {
		return
	}
	m.extractionFailed.WithLabelValues(field).Inc()
}

func (m *ChatMetrics) ObserveMatch(matched bool) {
	if m == nil {
		return
	}
	outcome := "no_match"
	if matched {
		outcome = "match"
	}
	m.matchOutcomes.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTurnTotal.WithLabelValues(reason).Inc()
}
