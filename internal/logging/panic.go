package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	Component  string    `json:"component"`
	Operation  string    `json:"operation"`
	GOOS       string    `json:"goos"`
	GOARCH     string    `json:"goarch"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
}

// PanicError is returned in place of a recovered panic.
type PanicError struct {
	Operation string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// Recoverer turns panics in key handlers and IPC handlers into errors. A
// panic in the front end would otherwise take down the host application.
type Recoverer struct {
	Dir       string
	Component string
	Version   string
	Logger    *slog.Logger
}

// NewRecoverer creates a Recoverer writing dumps under StateDir()/crashes.
func NewRecoverer(component, version string, logger *slog.Logger) *Recoverer {
	return &Recoverer{
		Dir:       filepath.Join(StateDir(), "crashes"),
		Component: component,
		Version:   version,
		Logger:    logger,
	}
}

// Recover must be deferred directly. It stores a *PanicError in *errp when
// a panic was recovered.
//
//	defer rec.Recover("handle_key", &err)
func (r *Recoverer) Recover(op string, errp *error) {
	v := recover()
	if v == nil {
		return
	}
	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		Version:    r.Version,
		Component:  r.Component,
		Operation:  op,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprint(v),
		StackTrace: string(debug.Stack()),
	}
	path, werr := r.write(report)

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("recovered panic", "op", op, "panic", report.PanicValue, "dump", path, "dump_error", werr)

	if errp != nil {
		*errp = &PanicError{Operation: op, Value: v}
	}
}

func (r *Recoverer) write(report CrashReport) (string, error) {
	if r.Dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.Dir, 0o750); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(r.Dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads the crash dumps in r.Dir.
func (r *Recoverer) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(r.Dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var rep CrashReport
		if json.Unmarshal(data, &rep) == nil {
			reports = append(reports, rep)
		}
	}
	return reports, nil
}
