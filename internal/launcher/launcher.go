// Package launcher starts the engine and window servers as child
// processes and restarts them when they exit.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTooManyRestarts ends supervision of a process that keeps exiting.
var ErrTooManyRestarts = errors.New("launcher: too many restarts")

// Process is one supervised child.
type Process struct {
	Name string
	Path string
	Args []string
	Env  []string
}

// Options configures a Supervisor.
type Options struct {
	Processes []Process

	// RestartDelay is the pause before a restart; zero means one second.
	RestartDelay time.Duration

	// MaxRestarts within RestartWindow before giving up; zero means 5.
	MaxRestarts   int
	RestartWindow time.Duration

	// StopTimeout is how long a child may take to exit after being asked
	// to; it is killed afterwards. Zero means five seconds.
	StopTimeout time.Duration

	Stdout, Stderr io.Writer
	Logger         *slog.Logger
}

// Supervisor runs a fixed set of processes.
type Supervisor struct {
	opts Options
	log  *slog.Logger
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = 5
	}
	if opts.RestartWindow <= 0 {
		opts.RestartWindow = time.Minute
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{opts: opts, log: opts.Logger}
}

// Run starts every process and keeps it running until ctx is done. When a
// process exits more than MaxRestarts times within RestartWindow, Run stops
// the others and returns ErrTooManyRestarts.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.opts.Processes {
		g.Go(func() error { return s.supervise(gctx, p) })
	}
	return g.Wait()
}

func (s *Supervisor) supervise(ctx context.Context, p Process) error {
	var exits []time.Time
	for {
		started := time.Now()
		err := s.runOnce(ctx, p)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("process exited", "process", p.Name, "error", err, "uptime", time.Since(started).Round(time.Millisecond))

		now := time.Now()
		recent := exits[:0]
		for _, t := range exits {
			if now.Sub(t) < s.opts.RestartWindow {
				recent = append(recent, t)
			}
		}
		exits = append(recent, now)
		if len(exits) > s.opts.MaxRestarts {
			return fmt.Errorf("%s exited %d times within %s: %w", p.Name, len(exits), s.opts.RestartWindow, ErrTooManyRestarts)
		}

		t := time.NewTimer(s.opts.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		s.log.Info("restarting", "process", p.Name, "restarts", len(exits))
	}
}

func (s *Supervisor) runOnce(ctx context.Context, p Process) error {
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	if runtime.GOOS != "windows" {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	}
	cmd.WaitDelay = s.opts.StopTimeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	s.log.Info("process started", "process", p.Name, "pid", cmd.Process.Pid)
	return cmd.Wait()
}

// Locate finds a kanaime binary next to the running executable, then on
// PATH.
func Locate(name string) (string, error) {
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", name, err)
	}
	return path, nil
}
