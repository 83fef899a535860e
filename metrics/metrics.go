// Package metrics exposes Prometheus collectors for download issuance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Downloads holds the issuance collectors. A nil *Downloads is a no-op.
type Downloads struct {
	grantsIssued      *prometheus.CounterVec
	grantsDenied      *prometheus.CounterVec
	rateLimitFailures prometheus.Counter
	recordFailures    *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
}

// New registers the collectors with registerer, or the default registerer when nil.
func New(registerer prometheus.Registerer) *Downloads {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	grantsIssued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallkit_grants_issued_total",
			Help: "Signed download URLs issued.",
		},
		[]string{"resolution", "tier"},
	)
	grantsDenied := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallkit_grants_denied_total",
			Help: "Download URL requests refused, by error code.",
		},
		[]string{"code"},
	)
	rateLimitFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallkit_rate_limit_lookup_failures_total",
			Help: "Rate limit checks that could not be evaluated.",
		},
	)
	recordFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallkit_usage_record_failures_total",
			Help: "Best-effort usage writes that failed.",
		},
		[]string{"op"}, // insert | increment | enqueue
	)
	redemptions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallkit_redemptions_total",
			Help: "Signed URL redemptions, by result.",
		},
		[]string{"result"}, // ok | expired | invalid | error
	)

	registerer.MustRegister(grantsIssued, grantsDenied, rateLimitFailures, recordFailures, redemptions)

	return &Downloads{
		grantsIssued:      grantsIssued,
		grantsDenied:      grantsDenied,
		rateLimitFailures: rateLimitFailures,
		recordFailures:    recordFailures,
		redemptions:       redemptions,
	}
}

func (m *Downloads) GrantIssued(resolution, tier string) {
	if m == nil {
		return
	}
	m.grantsIssued.WithLabelValues(resolution, tier).Inc()
}

func (m *Downloads) GrantDenied(code string) {
	if m == nil {
		return
	}
	m.grantsDenied.WithLabelValues(code).Inc()
}

func (m *Downloads) RateLimitLookupFailed() {
	if m == nil {
		return
	}
	m.rateLimitFailures.Inc()
}

func (m *Downloads) RecordFailed(op string) {
	if m == nil {
		return
	}
	m.recordFailures.WithLabelValues(op).Inc()
}

func (m *Downloads) Redeemed(result string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(result).Inc()
}
