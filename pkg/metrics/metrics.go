package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts registration attempts by result (success|conflict|email_failure|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// AuthAttempts records login attempts by result (success|failure|unverified).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// VerificationEmails counts verification emails by trigger (register|resend) and result (sent|failed).
	VerificationEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_verification_emails_total",
			Help: "Total number of verification emails dispatched",
		},
		[]string{"trigger", "result"},
	)

	// Verifications counts token consumption outcomes (verified|noop).
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_verifications_total",
			Help: "Total number of email verification attempts",
		},
		[]string{"result"},
	)

	// PasswordResets counts password reset steps (requested|completed|invalid_token|unknown_email).
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_password_resets_total",
			Help: "Total number of password reset operations",
		},
		[]string{"step"},
	)

	// OwnershipChecks counts per-user resource guards by result (allowed|denied).
	OwnershipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_ownership_checks_total",
			Help: "Total number of user ownership checks",
		},
		[]string{"result"},
	)

	// MaintenanceRuns counts background job runs by job and result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// HealthProbeUp reports the last outcome of each health probe (1 up, 0 otherwise).
	HealthProbeUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accountd_health_probe_up",
			Help: "Whether the last run of a health probe reported up",
		},
		[]string{"kind", "component"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accountd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
