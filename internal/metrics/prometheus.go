package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	authAttemptsTotal *prometheus.CounterVec
	authTimeoutsTotal prometheus.Counter

	sessionsTotal  prometheus.Counter
	sessionsActive prometheus.Gauge
	commandsTotal  prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlogind_connections_total",
			Help: "Total number of client connections accepted by the listener.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlogind_connections_active",
			Help: "Number of currently active client connections.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlogind_auth_attempts_total",
			Help: "Total number of authentication attempts, by result.",
		}, []string{"result"}),
		authTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlogind_auth_timeouts_total",
			Help: "Total number of connections torn down for exceeding the auth timeout.",
		}),

		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlogind_sessions_total",
			Help: "Total number of sessions that reached an authenticated command loop.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlogind_sessions_active",
			Help: "Number of currently active authenticated sessions.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlogind_commands_total",
			Help: "Total number of commands executed under a user identity.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.authAttemptsTotal,
		c.authTimeoutsTotal,
		c.sessionsTotal,
		c.sessionsActive,
		c.commandsTotal,
	)

	return c
}

// ConnectionAccepted increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionAccepted() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// AuthTimeout increments the auth-timeout counter.
func (c *PrometheusCollector) AuthTimeout() {
	c.authTimeoutsTotal.Inc()
}

// SessionStarted increments the sessions counter and active gauge.
func (c *PrometheusCollector) SessionStarted() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionEnded decrements the active sessions gauge.
func (c *PrometheusCollector) SessionEnded() {
	c.sessionsActive.Dec()
}

// CommandExecuted increments the commands counter.
func (c *PrometheusCollector) CommandExecuted() {
	c.commandsTotal.Inc()
}

// PrometheusServer exposes a PrometheusCollector's registry over HTTP.
type PrometheusServer struct {
	addr   string
	path   string
	srv    *http.Server
	gather prometheus.Gatherer
}

// NewPrometheusServer builds a metrics HTTP server bound to addr, serving the
// registry's families at path.
func NewPrometheusServer(addr, path string, reg *prometheus.Registry) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &PrometheusServer{
		addr:   addr,
		path:   path,
		gather: reg,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start begins serving metrics. It blocks until the context is canceled or
// ListenAndServe returns a non-shutdown error.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Shutdown gracefully stops the metrics server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
