// Package devserver runs a protocol server command and restarts it when
// source files under a watched directory change.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"adfbridge/internal/logging"
)

// Options configures a Supervisor.
type Options struct {
	Command string
	Args    []string
	// WatchDir is watched recursively. A missing directory falls back to
	// the current directory.
	WatchDir string
	// Extensions limits which files trigger a restart; empty means all.
	Extensions  []string
	Debounce    time.Duration
	StopTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// Supervisor owns one child process at a time.
type Supervisor struct {
	opts     Options
	watchDir string

	mu       sync.Mutex
	proc     *process
	restarts int
	lastPath string
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// New validates opts and fills in defaults.
func New(opts Options) (*Supervisor, error) {
	if opts.Command == "" {
		return nil, errors.New("devserver: command is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
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
	return &Supervisor{opts: opts, watchDir: ResolveWatchDir(opts.WatchDir)}, nil
}

// ResolveWatchDir returns dir when it is an existing directory and "."
// otherwise.
func ResolveWatchDir(dir string) string {
	if dir == "" {
		return "."
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return "."
}

// WatchDir returns the directory being watched.
func (s *Supervisor) WatchDir() string { return s.watchDir }

// Restarts returns how many times the command was restarted.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Running reports whether a child process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Run starts the command and blocks until ctx is cancelled, restarting the
// command after each debounced batch of matching changes. The child is
// stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := s.addRecursive(watcher, s.watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.watchDir, err)
	}
	logging.DevServer("watching %s for %v", s.watchDir, s.opts.Extensions)

	if err := s.start(); err != nil {
		return err
	}
	defer s.stop()

	g, gctx := errgroup.WithContext(ctx)
	restartCh := make(chan string)

	g.Go(func() error {
		return s.watch(gctx, watcher, restartCh)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case path := <-restartCh:
				if err := s.restart(path); err != nil {
					logging.DevServerError("restart failed: %v", err)
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch forwards debounced changes to restartCh.
func (s *Supervisor) watch(ctx context.Context, watcher *fsnotify.Watcher, restartCh chan<- string) error {
	tick := s.opts.Debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var (
		pending   string
		lastEvent time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.addRecursive(watcher, event.Name); err != nil {
						logging.DevServerWarn("cannot watch new directory %s: %v", event.Name, err)
					}
					continue
				}
			}
			if !s.matches(event) {
				continue
			}
			logging.DevServerDebug("%s %s", event.Op, event.Name)
			pending = event.Name
			lastEvent = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.DevServerError("watcher error: %v", err)

		case <-ticker.C:
			if pending == "" || time.Since(lastEvent) < s.opts.Debounce {
				continue
			}
			select {
			case restartCh <- pending:
				pending = ""
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Supervisor) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return MatchesExtension(event.Name, s.opts.Extensions)
}

// MatchesExtension reports whether path has one of exts. An empty list
// matches everything.
func MatchesExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range exts {
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func (s *Supervisor) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__" || name == "node_modules"
}

func (s *Supervisor) start() error {
	cmd := exec.Command(s.opts.Command, s.opts.Args...)
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.opts.Command, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
		logging.DevServer("process %d exited: %v", cmd.Process.Pid, p.err)
	}()

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()

	logging.DevServer("started %s %s (pid %d)", s.opts.Command, strings.Join(s.opts.Args, " "), cmd.Process.Pid)
	return nil
}

// stop terminates the child, killing it if it outlives StopTimeout.
func (s *Supervisor) stop() {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.mu.Unlock()
	if p == nil {
		return
	}

	select {
	case <-p.done:
		return
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.DevServerWarn("terminate failed, killing: %v", err)
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(s.opts.StopTimeout):
		logging.DevServerWarn("process %d did not exit within %v, killing", p.cmd.Process.Pid, s.opts.StopTimeout)
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

func (s *Supervisor) restart(path string) error {
	logging.DevServer("change detected in %s, restarting", path)
	s.stop()
	if err := s.start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.restarts++
	s.lastPath = path
	s.mu.Unlock()
	return nil
}

// LastChange returns the path that caused the latest restart.
func (s *Supervisor) LastChange() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath
}
