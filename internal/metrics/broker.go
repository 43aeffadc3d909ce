package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broker-level Prometheus metrics. Defined in a standalone package to avoid
// import cycles between the protocol engines and HTTP packages.

var (
	AuthCodesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_auth_codes_issued_total",
		Help: "Authorization codes emitidos, por client_id",
	}, []string{"client_id"})

	AuthCodesConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_auth_codes_consumed_total",
		Help: "Authorization codes canjeados con éxito",
	})

	CodeReplaysDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_code_replays_detected_total",
		Help: "Intentos de reuso de authorization code",
	})

	RefreshReplaysDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_refresh_replays_detected_total",
		Help: "Refresh tokens revocados presentados; dispara revocación de familia",
	})

	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_tokens_issued_total",
		Help: "Tokens emitidos, por tipo de grant",
	}, []string{"grant_type"})

	UpstreamLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_upstream_logins_total",
		Help: "Logins completados contra backends externos, por backend y resultado",
	}, []string{"backend", "result"})

	LogoutNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_logout_notifications_total",
		Help: "Notificaciones de logout back-channel, por resultado",
	}, []string{"result"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broker_http_request_duration_seconds",
		Help:    "Duración de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Register registers the broker metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthCodesIssued, AuthCodesConsumed, CodeReplaysDetected,
		RefreshReplaysDetected, TokensIssued, UpstreamLogins,
		LogoutNotifications, HTTPRequestDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
