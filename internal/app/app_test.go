package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/ime"
)

func TestStart(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nmax_candidates = 7\n"), 0o600))

	rt, err := Start(context.Background(), "engine", path)
	require.NoError(t, err)
	assert.Equal(t, "engine", rt.Component)
	assert.Equal(t, 7, rt.Config.Engine.MaxCandidates)
	assert.Equal(t, path, rt.Loader.Path())
	require.NotNil(t, rt.Loader.Config())
	assert.Equal(t, 7, rt.Loader.Config().Engine.MaxCandidates)
	assert.NotNil(t, rt.Metrics)
	require.NotNil(t, rt.Health)
	assert.False(t, rt.Health.Ready())
	assert.Equal(t, "engine", rt.Recoverer.Component)
	assert.DirExists(t, rt.Config.IME.StateDir)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, rt.ServeMetrics(ctx, ""), "no address waits for ctx")

	require.NoError(t, rt.Close(context.Background()))
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nmax_candidates = 0\n"), 0o600))

	_, err := Start(context.Background(), "engine", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_candidates")
}

func TestRuntimeModesAndDial(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)
	path := filepath.Join(dir, "config.toml")
	cfg := "[ime]\ndefault_mode = \"kana\"\n" +
		"[engine]\nendpoint = \"" + filepath.Join(dir, "missing-engine.sock") + "\"\ndial_interval_ms = 10\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	rt, err := Start(context.Background(), "ibus", path)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, ime.ModeKana, rt.Modes().Mode())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err = rt.Dial(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to engine")
}
