package services

import "github.com/prometheus/client_golang/prometheus"

// Domain metrics, registered by MonitoringService alongside the HTTP metrics.
var (
	progressDurableWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_durable_writes_total",
			Help: "Durable progress writes by result",
		},
		[]string{"result"},
	)

	progressSavesCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_saves_coalesced_total",
			Help: "Progress saves folded into an already pending write",
		},
	)

	progressDowngradesIgnoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_completion_downgrades_ignored_total",
			Help: "Writes that would have cleared a completed flag",
		},
	)

	progressStaleWritesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_stale_writes_skipped_total",
			Help: "Progress writes dropped because the stored record was newer",
		},
	)

	certificatesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Certificate issuance attempts by result",
		},
		[]string{"result"},
	)

	certificateVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_verifications_total",
			Help: "Certificate verification lookups by result",
		},
		[]string{"result"},
	)

	rateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func domainCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		progressDurableWritesTotal,
		progressSavesCoalescedTotal,
		progressDowngradesIgnoredTotal,
		progressStaleWritesSkippedTotal,
		certificatesIssuedTotal,
		certificateVerificationsTotal,
		rateLimitRejectionsTotal,
	}
}
