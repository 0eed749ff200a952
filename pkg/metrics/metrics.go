package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// outcome: confirmed, waitlisted, seat_conflict, capacity_exceeded, busy, invalid, error
	ReservationsTotal *prometheus.CounterVec
	// op: reserve, release, enqueue, promote, leave, expire
	TxRetriesTotal          *prometheus.CounterVec
	TxDuration              *prometheus.HistogramVec
	WaitlistPromotionsTotal prometheus.Counter
	// result: published, dropped, failed
	NotificationsTotal *prometheus.CounterVec
}

// New registers collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Reservation attempts by outcome",
			},
			[]string{"outcome"},
		),
		TxRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_tx_retries_total",
				Help: "Slot transactions retried after a serialization conflict",
			},
			[]string{"op"},
		),
		TxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_tx_duration_seconds",
				Help:    "Time spent in slot transactions including retries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		WaitlistPromotionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waitlist_promotions_total",
				Help: "Waitlist entries promoted to bookings",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notification deliveries by event and result",
			},
			[]string{"event", "result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.TxRetriesTotal,
		m.TxDuration,
		m.WaitlistPromotionsTotal,
		m.NotificationsTotal,
	)

	return m
}

func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.TxRetriesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveTx(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.TxDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObservePromotions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WaitlistPromotionsTotal.Add(float64(n))
}

func (m *Metrics) ObserveNotification(event, result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(event, result).Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
