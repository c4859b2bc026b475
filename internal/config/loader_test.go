package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderReload(t *testing.T) {
	path := writeFile(t, "config.toml", "[engine]\nmax_candidates = 4\n")
	l := NewLoader(path, nil)
	defer l.Close()

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.MaxCandidates)

	var got []*Config
	l.OnChange(func(c *Config) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nmax_candidates = 6\n"), 0o600))
	cfg, err = l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Engine.MaxCandidates)
	assert.Same(t, cfg, l.Config())
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].Engine.MaxCandidates)
}

func TestLoaderReloadKeepsConfigOnInvalidFile(t *testing.T) {
	path := writeFile(t, "config.toml", "[window]\npage_size = 5\n")
	l := NewLoader(path, nil)
	defer l.Close()
	before, err := l.Load()
	require.NoError(t, err)

	called := false
	l.OnChange(func(*Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("[window]\npage_size = 500\n"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window.page_size")
	assert.Same(t, before, l.Config())
	assert.False(t, called)
}

func TestLoaderWatch(t *testing.T) {
	path := writeFile(t, "config.toml", "[engine]\nmax_candidates = 4\n")
	l := NewLoader(path, nil)
	defer l.Close()
	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nmax_candidates = 9\n"), 0o600))

	select {
	case cfg := <-changed:
		assert.Equal(t, 9, cfg.Engine.MaxCandidates)
	case err := <-l.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestLoaderWatchIgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "config.toml", "")
	l := NewLoader(path, nil)
	defer l.Close()
	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))

	select {
	case <-changed:
		t.Fatal("reloaded for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Version, cfg.Version)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}
