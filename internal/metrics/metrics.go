package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "finance"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Finance flow metrics
	InvoicesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_invoices_created_total",
			Help: "Total number of invoices created, including renewals",
		},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_payments_total",
			Help: "Total number of payment records by resulting status",
		},
		[]string{"status"},
	)

	InvoiceStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_invoice_status_transitions_total",
			Help: "Total number of invoice status changes",
		},
		[]string{"from", "to"},
	)
)

// RecordInvoiceCreated increments the invoice creation counter
func RecordInvoiceCreated() {
	InvoicesCreatedTotal.Inc()
}

// RecordPayment counts a payment entering the given status
func RecordPayment(status string) {
	PaymentsTotal.WithLabelValues(status).Inc()
}

// RecordStatusTransition counts an invoice moving between statuses
func RecordStatusTransition(from, to string) {
	InvoiceStatusTransitions.WithLabelValues(from, to).Inc()
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
