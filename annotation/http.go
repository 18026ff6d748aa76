package annotation

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lewtec/anotador/internal/analytics"
)

// Metrics are the counters exported on /metrics
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	accepted  *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anotador_http_requests_total",
			Help: "HTTP requests by status code",
		}, []string{"code"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anotador_predictions_accepted_total",
			Help: "Predictions accepted into scenes by mode",
		}, []string{"mode"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anotador_scene_mutations_total",
			Help: "History tracked scene mutations by kind",
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.requests, m.accepted, m.mutations)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Accepted counts predictions accepted with mode
func (m *Metrics) Accepted(mode string, count int) {
	m.accepted.WithLabelValues(mode).Add(float64(count))
}

// Observer counts scene mutations
func (m *Metrics) Observer() analytics.Observer {
	return mutationCounter{m.mutations}
}

type mutationCounter struct {
	counter *prometheus.CounterVec
}

func (c mutationCounter) Record(event analytics.Event) {
	c.counter.WithLabelValues(string(event.Kind)).Inc()
}

func (mutationCounter) Reset() {}

// HTTPLogger logs every request and counts it by status code
func (m *Metrics) HTTPLogger(handler http.Handler) http.Handler {
	logged := HTTPLogger(handler)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wr := NewStatusCodeRecorderResponseWriter(w)
		logged.ServeHTTP(wr, r)
		m.requests.WithLabelValues(strconv.Itoa(wr.Status)).Inc()
	})
}

func HTTPLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initialTime := time.Now()
		method := r.Method
		path := r.URL.String()
		wr := NewStatusCodeRecorderResponseWriter(w)
		handler.ServeHTTP(wr, r)
		finalTime := time.Now()
		statusCode := wr.Status
		log.Printf("http: time:%dms %d %s %s", finalTime.Sub(initialTime)/time.Millisecond, statusCode, method, path)
	})
}

type StatusCodeRecorderResponseWriter struct {
	http.ResponseWriter
	Status int
}

func (r *StatusCodeRecorderResponseWriter) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func NewStatusCodeRecorderResponseWriter(w http.ResponseWriter) *StatusCodeRecorderResponseWriter {
	return &StatusCodeRecorderResponseWriter{ResponseWriter: w, Status: 200}
}
