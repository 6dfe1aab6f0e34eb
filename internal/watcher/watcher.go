// Package watcher pushes a working copy automatically after local changes settle
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
)

// metadataDir is never watched
const metadataDir = ".svn"

// SyncFunc runs one synchronization pass
type SyncFunc func(ctx context.Context) error

// Config controls the watcher
type Config struct {
	// Root is the working copy to watch
	Root string

	// Debounce is the quiet period after the last change before pushing
	Debounce time.Duration

	// PullInterval pulls remote changes periodically; zero disables it
	PullInterval time.Duration

	// IgnorePatterns are gitignore lines whose matches never trigger a push
	IgnorePatterns []string
}

// Stats counts what the watcher has done
type Stats struct {
	Events      int64
	Pushes      int64
	Pulls       int64
	Failures    int64
	LastPush    time.Time
	WatchedDirs int
}

// Watcher turns filesystem events below Root into debounced pushes
type Watcher struct {
	cfg    Config
	push   SyncFunc
	pull   SyncFunc
	ignore *gitignore.GitIgnore
	logger *zap.Logger

	fsw     *fsnotify.Watcher
	dirs    map[string]bool
	dirsMu  sync.RWMutex
	hashes  map[string]string
	hashMu  sync.Mutex
	pending mapset.Set[string]

	ready chan struct{}

	events   atomic.Int64
	pushes   atomic.Int64
	pulls    atomic.Int64
	failures atomic.Int64
	lastPush atomic.Int64
}

// New creates a watcher calling push after changes and pull on the interval
func New(cfg Config, push, pull SyncFunc) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	if push == nil {
		return nil, errors.New("push function is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	cfg.Root = root

	return &Watcher{
		cfg:     cfg,
		push:    push,
		pull:    pull,
		ignore:  gitignore.CompileIgnoreLines(cfg.IgnorePatterns...),
		logger:  pplogger.Named("watcher"),
		dirs:    make(map[string]bool),
		hashes:  make(map[string]string),
		pending: mapset.NewThreadUnsafeSet[string](),
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the initial directories are being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Stats returns a snapshot of the counters
func (w *Watcher) Stats() Stats {
	w.dirsMu.RLock()
	dirs := len(w.dirs)
	w.dirsMu.RUnlock()

	s := Stats{
		Events:      w.events.Load(),
		Pushes:      w.pushes.Load(),
		Pulls:       w.pulls.Load(),
		Failures:    w.failures.Load(),
		WatchedDirs: dirs,
	}
	if ts := w.lastPush.Load(); ts != 0 {
		s.LastPush = time.Unix(0, ts)
	}
	return s
}

// Run watches until ctx is done. Sync failures are logged and watching
// continues; only setup failures are returned. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.addRecursive(w.cfg.Root); err != nil {
		return err
	}
	close(w.ready)

	w.logger.Info("Watching working copy",
		zap.String("root", w.cfg.Root),
		zap.Duration("debounce", w.cfg.Debounce),
		zap.Duration("pull_interval", w.cfg.PullInterval),
		zap.Int("directories", w.Stats().WatchedDirs))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
		tickC  <-chan time.Time
	)
	if w.pull != nil && w.cfg.PullInterval > 0 {
		ticker := time.NewTicker(w.cfg.PullInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped", zap.Int64("pushes", w.pushes.Load()))
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Debounce)
			}
			timerC = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.flush(ctx)

		case <-tickC:
			w.runPull(ctx)
		}
	}
}

// handleEvent records a relevant event and reports whether it should schedule a push
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	rel, ok := w.relative(event.Name)
	if !ok {
		return false
	}

	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()
	if w.shouldIgnore(rel, isDir) {
		return false
	}

	if isDir && event.Has(fsnotify.Create) {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Warn("Failed to add new directory to watcher",
				zap.String("path", event.Name),
				zap.Error(err))
		}
	}

	// writes that leave the content unchanged are noise
	if event.Has(fsnotify.Write) && statErr == nil && !isDir {
		if hash, err := hashFile(event.Name); err == nil {
			w.hashMu.Lock()
			old, seen := w.hashes[event.Name]
			w.hashes[event.Name] = hash
			w.hashMu.Unlock()
			if seen && old == hash {
				return false
			}
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.forget(event.Name)
	}

	w.events.Add(1)
	w.pending.Add(rel)
	w.logger.Debug("File change detected",
		zap.String("path", rel),
		zap.String("op", event.Op.String()))
	return true
}

func (w *Watcher) flush(ctx context.Context) {
	changed := w.pending.Cardinality()
	w.pending.Clear()

	w.logger.Info("Pushing local changes", zap.Int("changed", changed))
	if err := w.push(ctx); err != nil {
		w.failures.Add(1)
		w.logger.Error("Automatic push failed", zap.Error(err))
		return
	}
	w.pushes.Add(1)
	w.lastPush.Store(time.Now().UnixNano())
}

func (w *Watcher) runPull(ctx context.Context) {
	if err := w.pull(ctx); err != nil {
		w.failures.Add(1)
		w.logger.Error("Periodic pull failed", zap.Error(err))
		return
	}
	w.pulls.Add(1)
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) shouldIgnore(rel string, isDir bool) bool {
	first := strings.SplitN(rel, "/", 2)[0]
	if first == metadataDir {
		return true
	}
	if w.ignore.MatchesPath(rel) {
		return true
	}
	return isDir && w.ignore.MatchesPath(rel+"/")
}

// addRecursive watches dir and every directory below it. Files are watched
// through their parent directory.
func (w *Watcher) addRecursive(dir string) error {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		if path != w.cfg.Root {
			rel, ok := w.relative(path)
			if !ok || w.shouldIgnore(rel, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if !d.IsDir() {
			if hash, err := hashFile(path); err == nil {
				w.hashMu.Lock()
				w.hashes[path] = hash
				w.hashMu.Unlock()
			}
			return nil
		}
		if w.dirs[path] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to add directory %s: %w", path, err)
		}
		w.dirs[path] = true
		return nil
	})
}

// forget drops a removed path and everything below it
func (w *Watcher) forget(path string) {
	prefix := path + string(filepath.Separator)

	w.dirsMu.Lock()
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
		}
	}
	w.dirsMu.Unlock()

	w.hashMu.Lock()
	for file := range w.hashes {
		if file == path || strings.HasPrefix(file, prefix) {
			delete(w.hashes, file)
		}
	}
	w.hashMu.Unlock()
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
