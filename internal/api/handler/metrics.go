package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/profilehub/internal/identity"
	"github.com/jmerrifield20/profilehub/internal/users"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "profilehub_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_registrations_total",
		Help: "Signup attempts by outcome.",
	}, []string{"outcome"})

	verificationEmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_verification_emails_total",
		Help: "Verification email deliveries by result.",
	}, []string{"result"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_email_verifications_total",
		Help: "Email verification attempts by outcome.",
	}, []string{"outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerificationEmail records a verification email delivery attempt.
// It matches users.VerificationMailer.OnResult.
func RecordVerificationEmail(err error) {
	if err == nil {
		verificationEmailsTotal.WithLabelValues("success").Inc()
	} else {
		verificationEmailsTotal.WithLabelValues("failure").Inc()
	}
}

func recordRegistration(err error) {
	var (
		verr     *users.ValidationError
		conflict *users.ConflictError
	)
	outcome := "created"
	switch {
	case err == nil:
	case errors.As(err, &verr):
		outcome = "invalid"
	case errors.As(err, &conflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	registrationsTotal.WithLabelValues(outcome).Inc()
}

func recordVerification(err error) {
	outcome := "verified"
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrExpired):
		outcome = "expired"
	case errors.Is(err, identity.ErrWrongPurpose):
		outcome = "wrong_purpose"
	case errors.Is(err, identity.ErrInvalidSignature):
		outcome = "invalid"
	case errors.Is(err, users.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	verificationsTotal.WithLabelValues(outcome).Inc()
}
