package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every series with service identity.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures domain-level health signals.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	emailsSent    *prometheus.CounterVec
	usageReports  *prometheus.CounterVec
	jobsProcessed *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// New returns the singleton domain metrics registry.
func New(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	labels := prometheus.Labels{
		"service": defaultString(cfg.ServiceName, "changespage"),
		"env":     defaultString(cfg.Environment, "unknown"),
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "changespage_webhook_events_total",
			Help:        "Database webhook deliveries by table and result.",
			ConstLabels: labels,
		}, []string{"table", "result"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "changespage_emails_total",
			Help:        "Outbound notification emails by campaign and result.",
			ConstLabels: labels,
		}, []string{"campaign", "result"}),
		usageReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "changespage_usage_reports_total",
			Help:        "Stripe usage record submissions by meter and result.",
			ConstLabels: labels,
		}, []string{"meter", "result"}),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "changespage_jobs_processed_total",
			Help:        "Background jobs by kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
	}

	for _, c := range []prometheus.Collector{m.webhookEvents, m.emailsSent, m.usageReports, m.jobsProcessed} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
		}
	}

	return m
}

func (m *Metrics) IncWebhookEvent(table, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(table, result).Inc()
}

func (m *Metrics) IncEmailSent(campaign, result string) {
	if m == nil {
		return
	}
	m.emailsSent.WithLabelValues(campaign, result).Inc()
}

func (m *Metrics) IncUsageReport(meter, result string) {
	if m == nil {
		return
	}
	m.usageReports.WithLabelValues(meter, result).Inc()
}

func (m *Metrics) IncJobProcessed(kind, result string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(kind, result).Inc()
}

func defaultString(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}
