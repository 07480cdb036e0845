package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "daypass"

// Metrics holds the application collectors
type Metrics struct {
	registry *prometheus.Registry

	BookingsCreated   prometheus.Counter
	BookingReplays    prometheus.Counter
	BookingIDRetries  prometheus.Counter
	PickupRequests    *prometheus.CounterVec
	PickupVehicles    prometheus.Histogram
	ChatResolutions   *prometheus.CounterVec
	ChatMessages      *prometheus.CounterVec
	ChatNotifications prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings persisted.",
		}),
		BookingReplays: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_replays_total",
			Help:      "Create-booking calls answered from an existing draft token.",
		}),
		BookingIDRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_id_collisions_total",
			Help:      "Generated booking IDs that collided and were regenerated.",
		}),
		PickupRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pickup_requests_total",
			Help:      "Pickup requests by outcome.",
		}, []string{"outcome"}),
		PickupVehicles: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pickup_vehicles",
			Help:      "Vehicles allocated per pickup request.",
			Buckets:   []float64{1, 2, 3, 4, 6, 9},
		}),
		ChatResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_resolutions_total",
			Help:      "Chat start-or-resume calls by result.",
		}, []string{"resumed"}),
		ChatMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages stored by sender.",
		}, []string{"sender"}),
		ChatNotifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_notifications_total",
			Help:      "Chat change notifications seen on the bus.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry (tests gather from it)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
