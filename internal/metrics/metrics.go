// Package metrics wires the outstation's optional observability hooks to
// Prometheus. Nothing else in this module imports prometheus directly; the
// core packages only see the outstation.Metrics interface, and this package
// is the one concrete implementation of it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/dnp3/outstation"
	"github.com/bmironenko/dnp3/internal/logger"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide Prometheus registry. Call it before
// constructing anything that asks for metrics; IsEnabled reports false until
// this has run, and New returns a collector that records into nothing.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if metrics were
// never enabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// outstationMetrics is the Prometheus-backed implementation of
// outstation.Metrics. A nil *outstationMetrics is valid and every method is
// nil-receiver safe, so New can be handed straight to Context.SetMetrics
// whether or not metrics are enabled.
type outstationMetrics struct {
	fragmentsReceived prometheus.Counter
	fragmentsDropped  *prometheus.CounterVec
	responsesSent     *prometheus.CounterVec
	confirmTimeouts   *prometheus.CounterVec
}

var _ outstation.Metrics = (*outstationMetrics)(nil)

// New creates the Prometheus-backed outstation.Metrics collector. Returns
// nil when metrics are disabled, which is what Context.SetMetrics expects
// for zero overhead.
func New() outstation.Metrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	m := &outstationMetrics{
		fragmentsReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dnp3_outstation_fragments_received_total",
			Help: "Total application fragments received from the master.",
		}),
		fragmentsDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dnp3_outstation_fragments_dropped_total",
			Help: "Fragments dropped before dispatch, by reason.",
		}, []string{"reason"}),
		responsesSent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dnp3_outstation_responses_sent_total",
			Help: "Responses handed to the lower layer, by kind (solicited/unsolicited).",
		}, []string{"kind"}),
		confirmTimeouts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dnp3_outstation_confirm_timeouts_total",
			Help: "Confirm timers that expired without a CONFIRM, by channel (solicited/unsolicited).",
		}, []string{"channel"}),
	}
	return m
}

func (m *outstationMetrics) FragmentReceived() {
	if m == nil {
		return
	}
	m.fragmentsReceived.Inc()
}

func (m *outstationMetrics) FragmentDropped(reason string) {
	if m == nil {
		return
	}
	m.fragmentsDropped.WithLabelValues(reason).Inc()
}

func (m *outstationMetrics) ResponseSent(kind string) {
	if m == nil {
		return
	}
	m.responsesSent.WithLabelValues(kind).Inc()
}

func (m *outstationMetrics) ConfirmTimeout(channel string) {
	if m == nil {
		return
	}
	m.confirmTimeouts.WithLabelValues(channel).Inc()
}

// Server exposes /metrics over HTTP. It also polls the event buffer for an
// occupancy gauge, since that number is cheapest to read directly off the
// database rather than pushed from inside the strand on every mutation.
type Server struct {
	httpServer *http.Server
	pollStop   chan struct{}
	pollDone   chan struct{}
}

// NewServer builds the metrics HTTP server. db may be nil, in which case
// the event-buffer occupancy gauge is never populated.
func NewServer(addr string, db database.Database) *Server {
	reg := GetRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		pollStop:   make(chan struct{}),
		pollDone:   make(chan struct{}),
	}
	if db != nil {
		occupancy := promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dnp3_outstation_event_buffer_occupancy",
			Help: "Unconfirmed events currently buffered, by class.",
		}, []string{"class"})
		go s.pollOccupancy(db, occupancy)
	} else {
		close(s.pollDone)
	}
	return s
}

func (s *Server) pollOccupancy(db database.Database, g *prometheus.GaugeVec) {
	defer close(s.pollDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.pollStop:
			return
		case <-ticker.C:
			total := db.Events().Total()
			g.WithLabelValues("class1").Set(float64(total.TotalForClass(events.Class1)))
			g.WithLabelValues("class2").Set(float64(total.TotalForClass(events.Class2)))
			g.WithLabelValues("class3").Set(float64(total.TotalForClass(events.Class3)))
		}
	}
}

// ListenAndServe blocks serving /metrics until the server is shut down.
func (s *Server) ListenAndServe() error {
	logger.Info("metrics endpoint listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and the occupancy poller.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.pollStop)
	<-s.pollDone
	return s.httpServer.Shutdown(ctx)
}
