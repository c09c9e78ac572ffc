package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the review workflow.
type Metrics struct {
	// Inspection outcomes by result: "approved", "rejected", "pending", "error"
	InspectionOutcome *prometheus.CounterVec

	// Rejections by the check that stopped the application
	InspectionRejection *prometheus.CounterVec

	// Full pipeline latency
	InspectionLatency prometheus.Histogram

	// Inspections abandoned because the bounded wait elapsed
	InspectionTimeouts prometheus.Counter

	// Sponsor rounds by resolution: "approved", "rejected", "expired"
	SponsorRounds *prometheus.CounterVec

	SessionsOpened prometheus.Counter

	// Sessions ended by final status
	SessionsEnded *prometheus.CounterVec
}

// New registers all workflow metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InspectionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nyukoku_inspection_outcomes_total",
			Help: "Total inspection outcomes by result",
		}, []string{"result"}),

		InspectionRejection: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nyukoku_inspection_rejections_total",
			Help: "Total inspection rejections by failing check",
		}, []string{"check"}),

		InspectionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nyukoku_inspection_duration_seconds",
			Help:    "Duration of the full inspection pipeline",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),

		InspectionTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "nyukoku_inspection_timeouts_total",
			Help: "Total inspections abandoned after the bounded wait",
		}),

		SponsorRounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nyukoku_sponsor_rounds_total",
			Help: "Total sponsor confirmation rounds by resolution",
		}, []string{"resolution"}),

		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "nyukoku_sessions_opened_total",
			Help: "Total review sessions opened",
		}),

		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nyukoku_sessions_ended_total",
			Help: "Total review sessions ended by final status",
		}, []string{"status"}),
	}
}

// RegisterOpenGauges exposes the live session and sponsor round counts.
func RegisterOpenGauges(reg prometheus.Registerer, sessions, rounds func() int) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nyukoku_sessions_open",
		Help: "Number of review sessions currently open",
	}, func() float64 { return float64(sessions()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nyukoku_sponsor_rounds_open",
		Help: "Number of sponsor confirmation rounds awaiting answers",
	}, func() float64 { return float64(rounds()) })
}

func (m *Metrics) IncrementOutcome(result string) {
	if m != nil {
		m.InspectionOutcome.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementRejection(check string) {
	if m != nil {
		m.InspectionRejection.WithLabelValues(check).Inc()
	}
}

func (m *Metrics) ObserveInspectionLatency(d time.Duration) {
	if m != nil {
		m.InspectionLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementTimeout() {
	if m != nil {
		m.InspectionTimeouts.Inc()
	}
}

func (m *Metrics) IncrementSponsorRound(resolution string) {
	if m != nil {
		m.SponsorRounds.WithLabelValues(resolution).Inc()
	}
}

func (m *Metrics) IncrementSessionOpened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

func (m *Metrics) IncrementSessionEnded(status string) {
	if m != nil {
		m.SessionsEnded.WithLabelValues(status).Inc()
	}
}
