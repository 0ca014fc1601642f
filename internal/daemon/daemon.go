// Package daemon repeats provisioning runs on an interval and serves
// metrics and health endpoints while doing so.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fortna/stackfleet/telemetry"
)

// Report is what the daemon needs to know about a finished run.
type Report struct {
	Selected    int
	Provisioned int
	Writes      int
}

// RunFunc performs one full provisioning run.
type RunFunc func(ctx context.Context) (Report, error)

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	// Listen is the address of the metrics and health server. Empty
	// disables the server; ":0" picks a free port.
	Listen string
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// HandleSignals stops the loop on SIGINT or SIGTERM.
	HandleSignals bool
}

// Daemon runs provisioning in a loop until a run fails or it is stopped.
type Daemon struct {
	interval      time.Duration
	listen        string
	gatherer      prometheus.Gatherer
	handleSignals bool
	run           RunFunc
	logger        *telemetry.Logger
	metrics       *Metrics

	startTime time.Time
	runCount  atomic.Int64
	ready     atomic.Bool

	mu   sync.Mutex
	addr net.Addr
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg Config, fn RunFunc, logger *telemetry.Logger, metrics *Metrics) (*Daemon, error) {
	if fn == nil {
		return nil, errors.New("daemon: run func is nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("daemon: interval must be positive (got %s)", cfg.Interval)
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewNopMetrics()
	}
	return &Daemon{
		interval:      cfg.Interval,
		listen:        cfg.Listen,
		gatherer:      cfg.Gatherer,
		handleSignals: cfg.HandleSignals,
		run:           fn,
		logger:        logger.Component("daemon"),
		metrics:       metrics,
		startTime:     time.Now(),
	}, nil
}

// Start runs until ctx is done, a signal arrives or a run fails. Only a
// failed run (or a server that cannot start) is returned as an error.
func (d *Daemon) Start(ctx context.Context) error {
	var g run.Group

	loopCtx, cancel := context.WithCancel(ctx)
	g.Add(func() error {
		return d.loop(loopCtx)
	}, func(error) {
		cancel()
	})

	if d.listen != "" {
		ln, err := net.Listen("tcp", d.listen)
		if err != nil {
			cancel()
			return fmt.Errorf("listen on %s: %w", d.listen, err)
		}
		d.setAddr(ln.Addr())
		srv := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}

		g.Add(func() error {
			d.logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics and health")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	if d.handleSignals {
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	err := g.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, run.ErrSignal):
		d.logger.Info().Str("reason", err.Error()).Msg("stopping")
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return nil
	}
	return err
}

// loop runs immediately, then once per interval.
func (d *Daemon) loop(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.runOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) error {
	n := d.runCount.Add(1)
	start := time.Now()

	report, err := d.run(ctx)
	if err != nil && ctx.Err() != nil {
		d.logger.Info().Int64("iteration", n).Msg("run interrupted by shutdown")
		return nil
	}
	d.metrics.RecordIteration(ctx, report, time.Since(start), err)
	if err != nil {
		d.ready.Store(false)
		return fmt.Errorf("run %d: %w", n, err)
	}

	d.ready.Store(true)
	d.logger.Info().
		Int64("iteration", n).
		Int("provisioned", report.Provisioned).
		Int("writes", report.Writes).
		Dur("next_in", d.interval).
		Msg("run complete")
	return nil
}

// Handler serves /metrics, /healthz and /readyz.
func (d *Daemon) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	if d.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", d.handleHealthz)
	r.Get("/readyz", d.handleReadyz)
	return r
}

// healthz reports liveness with the run counters.
func (d *Daemon) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(d.Health())
}

// readyz turns green after the first successful run.
func (d *Daemon) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !d.ready.Load() {
		writeText(w, http.StatusServiceUnavailable, "no successful run yet")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (d *Daemon) setAddr(a net.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addr = a
}

// Addr returns the bound server address, or "" before Start.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addr == nil {
		return ""
	}
	return d.addr.String()
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Runs:   d.runCount.Load(),
		Ready:  d.ready.Load(),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime_seconds"`
	Runs   int64  `json:"runs"`
	Ready  bool   `json:"ready"`
}

// RunCount returns the number of runs started.
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}
