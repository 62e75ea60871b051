package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vktrack"

// Collector exposes Prometheus metrics for the admin HTTP surface and the
// tracker loops, on a private registry.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	pollsTotal       *prometheus.CounterVec
	pollErrorsTotal  *prometheus.CounterVec
	transitionsTotal prometheus.Counter
	newItemsTotal    *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
}

// NewCollector constructs a collector with all tracker metrics registered.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	pollsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "polls_total",
		Help:      "Completed poll ticks per loop.",
	}, []string{"loop"})

	pollErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "poll_errors_total",
		Help:      "Poll tick failures per loop.",
	}, []string{"loop"})

	transitionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "presence_transitions_total",
		Help:      "Detected online/offline transitions.",
	})

	newItemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "new_items_total",
		Help:      "Novel items detected by the diff engine, per kind.",
	}, []string{"kind"})

	deliveriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification delivery outcomes.",
	}, []string{"outcome"})

	collectors := []prometheus.Collector{
		requestDuration, requestTotal,
		pollsTotal, pollErrorsTotal, transitionsTotal, newItemsTotal,
		deliveriesTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:         registry,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		pollsTotal:       pollsTotal,
		pollErrorsTotal:  pollErrorsTotal,
		transitionsTotal: transitionsTotal,
		newItemsTotal:    newItemsTotal,
		deliveriesTotal:  deliveriesTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// PollCompleted records one finished tick of the named loop.
func (c *Collector) PollCompleted(loop string) {
	c.pollsTotal.WithLabelValues(loop).Inc()
}

// PollFailed records one failed tick of the named loop.
func (c *Collector) PollFailed(loop string) {
	c.pollErrorsTotal.WithLabelValues(loop).Inc()
}

// TransitionDetected records one presence transition.
func (c *Collector) TransitionDetected() {
	c.transitionsTotal.Inc()
}

// NewItems records novel items detected for a kind.
func (c *Collector) NewItems(kind string, n int) {
	if n > 0 {
		c.newItemsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// DeliveryOutcome records one notification delivery result ("delivered",
// "fallback" or "failed").
func (c *Collector) DeliveryOutcome(outcome string) {
	c.deliveriesTotal.WithLabelValues(outcome).Inc()
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
