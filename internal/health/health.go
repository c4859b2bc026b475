// Package health reports whether a kanaime server can do its work.
//
// A server registers checks for what it depends on (the dictionary, the
// listening endpoint) and marks itself ready once it accepts connections.
// The handlers are served next to /metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the health of one check or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Result is the outcome of one check.
type Result struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Checked  time.Time     `json:"checked"`
	Duration time.Duration `json:"duration_ns"`
}

// CheckFunc returns nil when the dependency works.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Checker runs the registered checks.
type Checker struct {
	timeout time.Duration
	started time.Time

	mu      sync.RWMutex
	checks  map[string]check
	results map[string]Result
	ready   bool
}

// NewChecker creates a Checker. Each check gets timeout; zero means two
// seconds.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		timeout: timeout,
		started: time.Now(),
		checks:  make(map[string]check),
		results: make(map[string]Result),
	}
}

// Register adds a check. A failing critical check makes the process
// unhealthy; any other failing check only degrades it.
func (c *Checker) Register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{name: name, critical: critical, fn: fn}
	c.results[name] = Result{Status: StatusUnknown}
}

// SetReady marks the process as accepting work.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Ready reports the readiness flag.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Run runs every check concurrently and returns the results by name.
func (c *Checker) Run(ctx context.Context) map[string]Result {
	c.mu.RLock()
	checks := make([]check, 0, len(c.checks))
	for _, ch := range c.checks {
		checks = append(checks, ch)
	}
	c.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.run(ctx, ch)
			rmu.Lock()
			results[ch.name] = r
			rmu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range results {
		if _, ok := c.checks[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return results
}

func (c *Checker) run(ctx context.Context, ch check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("check panicked: %v", r)
			}
		}()
		done <- ch.fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("check timed out: %w", ctx.Err())
	}

	r := Result{Status: StatusHealthy, Checked: start, Duration: time.Since(start)}
	if err != nil {
		r.Status = StatusUnhealthy
		r.Error = err.Error()
	}
	return r
}

// Status folds the last results into one status.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusHealthy
	for name, r := range c.results {
		critical := c.checks[name].critical
		switch {
		case r.Status == StatusUnhealthy && critical:
			return StatusUnhealthy
		case r.Status == StatusUnhealthy, r.Status == StatusDegraded:
			status = StatusDegraded
		case r.Status == StatusUnknown && critical && status == StatusHealthy:
			status = StatusUnknown
		}
	}
	return status
}

// Report is the body of the health endpoint.
type Report struct {
	Status Status            `json:"status"`
	Ready  bool              `json:"ready"`
	Uptime string            `json:"uptime"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Report runs the checks and summarizes them.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Run(ctx)
	return Report{
		Status: c.Status(),
		Ready:  c.Ready(),
		Uptime: time.Since(c.started).Round(time.Second).String(),
		Checks: results,
	}
}

// Names returns the registered check names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mount adds /healthz (liveness and check report) and /readyz to mux.
func (c *Checker) Mount(mux *http.ServeMux) {
	mux.Handle("/healthz", c.HealthHandler())
	mux.Handle("/readyz", c.ReadyHandler())
}

// HealthHandler runs the checks. It answers 503 only when a critical check
// fails.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := c.Report(r.Context())
		code := http.StatusOK
		if rep.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rep)
	})
}

// ReadyHandler answers 200 once the process is ready and healthy.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ready := c.Ready() && c.Status() != StatusUnhealthy
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]bool{"ready": ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
