package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is the child started by the supervisor tests.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv("KANAIME_HELPER") {
	case "crash":
		fmt.Println("started")
		os.Exit(3)
	case "serve":
		fmt.Println("started")
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helper(mode string) Process {
	return Process{
		Name: mode,
		Path: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$"},
		Env:  []string{"KANAIME_HELPER=" + mode},
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisorGivesUpOnCrashLoop(t *testing.T) {
	var out bytes.Buffer
	s := New(Options{
		Processes:    []Process{helper("crash")},
		RestartDelay: time.Millisecond,
		MaxRestarts:  2,
		Stdout:       &out,
		Stderr:       io.Discard,
		Logger:       quiet(),
	})

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrTooManyRestarts)
	assert.Equal(t, 3, strings.Count(out.String(), "started"))
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{
		Processes:   []Process{helper("serve"), helper("serve")},
		StopTimeout: time.Second,
		Stdout:      io.Discard,
		Stderr:      io.Discard,
		Logger:      quiet(),
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisorStartFailure(t *testing.T) {
	s := New(Options{
		Processes:    []Process{{Name: "missing", Path: "/nonexistent/kanaime-engine"}},
		RestartDelay: time.Millisecond,
		MaxRestarts:  1,
		Logger:       quiet(),
	})
	assert.ErrorIs(t, s.Run(context.Background()), ErrTooManyRestarts)
}

func TestLocate(t *testing.T) {
	_, err := Locate("kanaime-definitely-not-installed")
	assert.Error(t, err)
}
