package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the verification core.
type Metrics struct {
	AgreementsCreated prometheus.Counter
	OtpIssued         *prometheus.CounterVec // channel: email, phone
	OtpVerifyTotal    *prometheus.CounterVec // result: success, expired, mismatch, not_found, throttled
	DeliveriesTotal   *prometheus.CounterVec // status: delivered, failed
	SignedURLsIssued  prometheus.Counter
	FileDownloads     *prometheus.CounterVec // result: ok, expired, invalid_signature, forbidden, not_found
}

// Nil-safe increment helpers; a nil *Metrics drops everything, which keeps
// tests free of registry collisions.

func (m *Metrics) IncAgreementsCreated() {
	if m != nil {
		m.AgreementsCreated.Inc()
	}
}

func (m *Metrics) IncOtpIssued(channel string) {
	if m != nil {
		m.OtpIssued.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) IncOtpVerify(result string) {
	if m != nil {
		m.OtpVerifyTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncDelivery(status string) {
	if m != nil {
		m.DeliveriesTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncSignedURLIssued() {
	if m != nil {
		m.SignedURLsIssued.Inc()
	}
}

func (m *Metrics) IncFileDownload(result string) {
	if m != nil {
		m.FileDownloads.WithLabelValues(result).Inc()
	}
}

// New registers all counters on the default registry.
func New() *Metrics {
	return &Metrics{
		AgreementsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "agreements",
			Name:      "created_total",
			Help:      "Total number of agreements created.",
		}),
		OtpIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "otp",
			Name:      "issued_total",
			Help:      "Total number of OTP codes issued by channel.",
		}, []string{"channel"}),
		OtpVerifyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "otp",
			Name:      "verify_total",
			Help:      "Total number of OTP verification attempts by result.",
		}, []string{"result"}),
		DeliveriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of agreement document delivery attempts by status.",
		}, []string{"status"}),
		SignedURLsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "files",
			Name:      "signed_urls_issued_total",
			Help:      "Total number of signed download URLs issued.",
		}),
		FileDownloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saferental",
			Subsystem: "files",
			Name:      "downloads_total",
			Help:      "Total number of file download attempts by result.",
		}, []string{"result"}),
	}
}
