// Package observability exposes the Prometheus metrics of the sync core.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector of the process.
// A nil *Metrics is valid and records nothing, which keeps tests light.
type Metrics struct {
	messagesAppended    prometheus.Counter
	appendConflicts     prometheus.Counter
	denormalizeFailures prometheus.Counter
	conversations       *prometheus.CounterVec
	watchesActive       *prometheus.GaugeVec
	watchInterrupts     *prometheus.CounterVec
	subscriptions       *prometheus.GaugeVec
	emissions           *prometheus.CounterVec
	degraded            *prometheus.CounterVec
	nameLookups         *prometheus.CounterVec
	residentMemory      prometheus.Gauge
	cpuPercent          prometheus.Gauge
	goroutines          prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_messages_appended_total",
			Help: "Messages committed to a conversation log",
		}),
		appendConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_append_conflicts_total",
			Help: "Append transactions re-run after a write conflict",
		}),
		denormalizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_denormalization_failures_total",
			Help: "Messages committed without their conversation summary",
		}),
		conversations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_conversation_lookups_total",
			Help: "Create-or-get calls by outcome",
		}, []string{"outcome"}),
		watchesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "talkstream_feed_watches_active",
			Help: "Underlying store subscriptions per collection",
		}, []string{"collection"}),
		watchInterrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_feed_watch_interruptions_total",
			Help: "Store subscriptions that ended while listeners were attached",
		}, []string{"collection"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "talkstream_subscriptions_active",
			Help: "Open subscriptions per target kind",
		}, []string{"kind"}),
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_subscription_emissions_total",
			Help: "Updates delivered to subscribers per target kind",
		}, []string{"kind"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_subscription_degraded_total",
			Help: "Subscriptions that failed to recover repeatedly",
		}, []string{"kind"}),
		nameLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_display_name_lookups_total",
			Help: "Display name resolutions by cache result",
		}, []string{"result"}),
		residentMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "talkstream_process_resident_memory_bytes",
			Help: "Resident set size sampled by the heartbeat",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "talkstream_process_cpu_percent",
			Help: "Process CPU usage sampled by the heartbeat",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "talkstream_goroutines",
			Help: "Goroutines sampled by the heartbeat",
		}),
	}

	reg.MustRegister(
		m.messagesAppended,
		m.appendConflicts,
		m.denormalizeFailures,
		m.conversations,
		m.watchesActive,
		m.watchInterrupts,
		m.subscriptions,
		m.emissions,
		m.degraded,
		m.nameLookups,
		m.residentMemory,
		m.cpuPercent,
		m.goroutines,
	)
	return m
}

func (m *Metrics) MessageAppended() {
	if m == nil {
		return
	}
	m.messagesAppended.Inc()
}

func (m *Metrics) AppendConflict() {
	if m == nil {
		return
	}
	m.appendConflicts.Inc()
}

func (m *Metrics) DenormalizationFailure() {
	if m == nil {
		return
	}
	m.denormalizeFailures.Inc()
}

// ConversationLookup records "created" or "existing".
func (m *Metrics) ConversationLookup(outcome string) {
	if m == nil {
		return
	}
	m.conversations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WatchStarted(collection string) {
	if m == nil {
		return
	}
	m.watchesActive.WithLabelValues(collection).Inc()
}

func (m *Metrics) WatchStopped(collection string) {
	if m == nil {
		return
	}
	m.watchesActive.WithLabelValues(collection).Dec()
}

func (m *Metrics) WatchInterrupted(collection string) {
	if m == nil {
		return
	}
	m.watchInterrupts.WithLabelValues(collection).Inc()
}

func (m *Metrics) SubscriptionOpened(kind string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(kind).Inc()
}

func (m *Metrics) SubscriptionClosed(kind string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(kind).Dec()
}

func (m *Metrics) Emission(kind string) {
	if m == nil {
		return
	}
	m.emissions.WithLabelValues(kind).Inc()
}

func (m *Metrics) Degraded(kind string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(kind).Inc()
}

func (m *Metrics) NameLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.nameLookups.WithLabelValues(result).Inc()
}

// ProcessSample records the heartbeat figures.
func (m *Metrics) ProcessSample(residentBytes uint64, cpuPercent float64, goroutines int) {
	if m == nil {
		return
	}
	m.residentMemory.Set(float64(residentBytes))
	m.cpuPercent.Set(cpuPercent)
	m.goroutines.Set(float64(goroutines))
}

// Handler serves the gatherer for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
