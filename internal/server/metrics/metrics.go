// Package metrics exposes Prometheus instruments for the auth use cases.
package metrics

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeValidation         = "validation"
	OutcomeDuplicate          = "duplicate"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeServiceUnavailable = "unavailable"
	OutcomeInternal           = "internal"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeNotFound           = "not_found"
)

// AuthMetrics groups the counters and histograms recorded by AuthService.
// Use Register to expose them on a registry.
type AuthMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	ResetMails *prometheus.CounterVec
}

func NewAuthMetrics() *AuthMetrics {
	return &AuthMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_auth_operations_total",
				Help: "Total number of auth use case invocations",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkeeper_auth_operation_duration_seconds",
				Help:    "Auth use case duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ResetMails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_reset_notifications_total",
				Help: "Password reset notifications handed to the mail sink",
			},
			[]string{"status"},
		),
	}
}

// Register registers all instruments with reg.
// Panics if registration fails (following prometheus convention).
func (m *AuthMetrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Operations, m.Duration, m.ResetMails)
}

// Observe records one finished operation. A nil receiver is a no-op.
func (m *AuthMetrics) Observe(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.Duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveResetMail counts notification hand-offs by status.
func (m *AuthMetrics) ObserveResetMail(err error) {
	if m == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeServiceUnavailable
	}
	m.ResetMails.WithLabelValues(status).Inc()
}

// Outcome maps a use case error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, common.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, common.ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, common.ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return OutcomeInvalidToken
	case errors.Is(err, common.ErrServiceUnavailable):
		return OutcomeServiceUnavailable
	case errors.Is(err, common.ErrorUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return OutcomeNotFound
	default:
		return OutcomeInternal
	}
}
