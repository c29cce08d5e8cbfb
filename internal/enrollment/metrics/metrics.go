package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment module.
// Tracks submission outcomes, OTP verification outcomes and the image
// compression pipeline.
type Metrics struct {
	Submissions          *prometheus.CounterVec
	OTPVerifications     *prometheus.CounterVec
	OTPResends           prometheus.Counter
	DuplicateChecks      *prometheus.CounterVec
	CompressionAttempts  prometheus.Histogram
	CompressedSizeBytes  prometheus.Histogram
	SubmitDuration       prometheus.Histogram
	SessionsRestored     prometheus.Counter
	SessionsExpired      prometheus.Counter
	QRIssued             prometheus.Counter
}

// New creates a new Metrics instance with all enrollment metrics registered.
func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chitenv_submissions_total",
			Help: "Form submissions by outcome (accepted, rejected, throttled, locked)",
		}, []string{"outcome"}),
		OTPVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chitenv_otp_verifications_total",
			Help: "OTP verification attempts by outcome (verified, rejected, timeout, locked)",
		}, []string{"outcome"}),
		OTPResends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chitenv_otp_resends_total",
			Help: "Total OTP resend requests accepted",
		}),
		DuplicateChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chitenv_duplicate_checks_total",
			Help: "Duplicate chit lookups by result (clear, pending, blocked, skipped)",
		}, []string{"result"}),
		CompressionAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chitenv_image_compression_attempts",
			Help:    "Re-encode iterations needed to reach the target size",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		CompressedSizeBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chitenv_image_compressed_size_bytes",
			Help:    "Final byte size of compressed photographs",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 6),
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chitenv_submit_duration_seconds",
			Help:    "Duration of upstream form submissions",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SessionsRestored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chitenv_sessions_restored_total",
			Help: "Wizard sessions rebuilt from a persisted snapshot",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chitenv_sessions_expired_total",
			Help: "Snapshots discarded for exceeding the expiration window",
		}),
		QRIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chitenv_qr_issued_total",
			Help: "Payment QR artifacts issued after verification",
		}),
	}
}

// ObserveSubmit records the duration of an upstream submission.
// Call with time.Now() at the start of the call.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// RecordSubmission records a submission outcome.
func (m *Metrics) RecordSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

// RecordVerification records an OTP verification outcome.
func (m *Metrics) RecordVerification(outcome string) {
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

// RecordCompression records one finished compression run.
func (m *Metrics) RecordCompression(attempts, sizeBytes int) {
	m.CompressionAttempts.Observe(float64(attempts))
	m.CompressedSizeBytes.Observe(float64(sizeBytes))
}
