package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Breaker struct {
		FailureThreshold int           `mapstructure:"failure_threshold"`
		ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	} `mapstructure:"breaker"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoader_Priority(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profile.yaml"), `
http:
  addr: ":5002"
breaker:
  failure_threshold: 3
log:
  level: info
`)
	writeFile(t, filepath.Join(dir, "profile.dev.yaml"), `
log:
  level: debug
`)

	t.Setenv("GACHA_ENV", "dev")
	t.Setenv("GACHA_HTTP_ADDR", ":9000")

	loader, err := New(&Config{
		Name:     "profile",
		Paths:    []string{dir},
		Defaults: map[string]any{"breaker.reset_timeout": "10s"},
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var cfg testConfig
	require.NoError(t, loader.Unmarshal(&cfg))

	assert.Equal(t, ":9000", cfg.HTTP.Addr, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level, "environment config overrides base")
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.ResetTimeout, "default applied")
}

func TestLoader_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	writeFile(t, file, "http:\n  addr: \":5003\"\n")

	loader, err := New(&Config{File: file})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, ":5003", loader.Get("http.addr"))
	assert.Equal(t, file, loader.ConfigFileUsed())
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	loader, err := New(&Config{
		Name:     "does-not-exist",
		Paths:    []string{t.TempDir()},
		Defaults: map[string]any{"http.addr": ":5004"},
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, ":5004", loader.Get("http.addr"))
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	writeFile(t, file, "log:\n  level: info\n")

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	_, err = loader.Watch(context.Background(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "log.level")
	require.NoError(t, err)

	writeFile(t, file, "log:\n  level: debug\n")

	select {
	case ev := <-ch:
		assert.Equal(t, "log.level", ev.Key)
		assert.Equal(t, "debug", ev.Value)
		assert.Equal(t, "info", ev.OldValue)
	case <-time.After(3 * time.Second):
		t.Skip("fsnotify event not delivered in this environment")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}
