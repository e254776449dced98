package devserver

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireSleep(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX signals")
	}
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	return path
}

func TestMatchesExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"src/server.py", []string{".py"}, true},
		{"src/server.PY", []string{".py"}, true},
		{"src/server.py", []string{"py"}, true},
		{"src/server.pyc", []string{".py"}, false},
		{"README.md", []string{".py", ".toml"}, false},
		{"pyproject.toml", []string{".py", ".toml"}, true},
		{"anything", nil, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesExtension(tt.path, tt.exts), "%s %v", tt.path, tt.exts)
	}
}

func TestMatchesIgnoresChmod(t *testing.T) {
	s, err := New(Options{Command: "true", Extensions: []string{".py"}})
	require.NoError(t, err)
	assert.False(t, s.matches(fsnotify.Event{Name: "a.py", Op: fsnotify.Chmod}))
	assert.True(t, s.matches(fsnotify.Event{Name: "a.py", Op: fsnotify.Write}))
	assert.False(t, s.matches(fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}))
}

func TestResolveWatchDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, ResolveWatchDir(dir))
	assert.Equal(t, ".", ResolveWatchDir(filepath.Join(dir, "missing")))
	assert.Equal(t, ".", ResolveWatchDir(""))

	file := filepath.Join(dir, "file.py")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Equal(t, ".", ResolveWatchDir(file))
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRunRestartsOnChange(t *testing.T) {
	sleep := requireSleep(t)
	dir := t.TempDir()
	nested := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0755))

	s, err := New(Options{
		Command:     sleep,
		Args:        []string{"30"},
		WatchDir:    dir,
		Extensions:  []string{".py"},
		Debounce:    50 * time.Millisecond,
		StopTimeout: 2 * time.Second,
		Stdout:      io.Discard,
		Stderr:      io.Discard,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.Running, 5*time.Second, 10*time.Millisecond)

	// Ignored extension: no restart.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	// A burst of writes collapses into one restart.
	target := filepath.Join(nested, "server.py")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte{byte('a' + i)}, 0644))
	}

	require.Eventually(t, func() bool { return s.Restarts() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, target, s.LastChange())
	assert.True(t, s.Running())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, s.Restarts())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.Running())
}

func TestRunFailsForMissingCommand(t *testing.T) {
	s, err := New(Options{Command: filepath.Join(t.TempDir(), "does-not-exist"), WatchDir: t.TempDir()})
	require.NoError(t, err)
	assert.Error(t, s.Run(context.Background()))
}
