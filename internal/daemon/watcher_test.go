package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/shellnotifyd/internal/config"
)

type reloads struct {
	mu      sync.Mutex
	configs []*config.Config
	errs    []error
}

func (r *reloads) onReload(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

func (r *reloads) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *reloads) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs), len(r.errs)
}

func startWatcher(t *testing.T, path string) (*ConfigWatcher, *reloads) {
	t.Helper()

	got := &reloads{}
	w := NewConfigWatcher(path, nil)
	w.SetDebounce(20 * time.Millisecond)
	w.SetReloadCallback(got.onReload)
	w.SetErrorCallback(got.onError)

	require.NoError(t, w.Start(context.Background(), config.DefaultConfig()))
	t.Cleanup(w.Stop)
	return w, got
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w, got := startWatcher(t, path)

	assert.Equal(t, config.DefaultConfig(), w.Current())

	require.NoError(t, os.WriteFile(path, []byte("[server]\nvendor = \"Reloaded\"\n"), 0644))

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Reloaded", w.Current().Server.Vendor)
}

func TestConfigWatcher_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w, got := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"chatty\"\n"), 0644))

	require.Eventually(t, func() bool {
		_, n := got.counts()
		return n >= 1
	}, 2*time.Second, 10*time.Millisecond)

	n, _ := got.counts()
	assert.Zero(t, n)
	assert.Equal(t, config.DefaultConfig(), w.Current(), "last valid config is kept")
}

func TestConfigWatcher_AtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	w, got := startWatcher(t, path)

	tmp := filepath.Join(dir, "config.toml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("[server]\nname = \"Atomic\"\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Atomic", w.Current().Server.Name)
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, got := startWatcher(t, filepath.Join(dir, "config.toml"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0644))

	time.Sleep(100 * time.Millisecond)
	n, errs := got.counts()
	assert.Zero(t, n)
	assert.Zero(t, errs)
}

func TestConfigWatcher_StopIsIdempotent(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "config.toml"), nil)
	w.Stop()

	require.NoError(t, w.Start(context.Background(), config.DefaultConfig()))
	require.NoError(t, w.Start(context.Background(), config.DefaultConfig()))
	w.Stop()
	w.Stop()
}
