// Package sync implements the working-copy synchronization engine
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// Engine synchronizes one local root with a remote repository.
// All public operations on an engine are serialized.
type Engine struct {
	// Core components
	client  interfaces.VCSClient
	tracker *Tracker
	history interfaces.HistoryStore
	logger  *zap.Logger

	// Configuration; RootPath may change between operations
	cfgMu sync.RWMutex
	cfg   config.Config

	guard   *guard
	metrics *metricsRecorder
}

// Option configures an Engine
type Option func(*Engine)

// WithHistory records every operation in store
func WithHistory(store interfaces.HistoryStore) Option {
	return func(e *Engine) {
		e.history = store
	}
}

// WithLogger replaces the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// operation is the state shared by the steps of one public call
type operation struct {
	ctx context.Context
	cfg config.Config
	tx  *models.Transaction
	log *zap.Logger
}

func (o *operation) name() string {
	return string(o.tx.Type)
}

// NewEngine validates cfg and creates an engine. No adapter call is made.
func NewEngine(cfg *config.Config, client interfaces.VCSClient, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, pperrors.NewConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, pperrors.NewValidationError("VCS client is required", nil)
	}

	e := &Engine{
		client:  client,
		tracker: NewTracker(),
		logger:  pplogger.Named("sync"),
		cfg:     *cfg,
		guard:   newGuard(cfg.LockFile),
		metrics: newMetricsRecorder(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns a copy of the current configuration
func (e *Engine) Config() config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	cfg := e.cfg
	cfg.IgnorePatterns = append([]string(nil), e.cfg.IgnorePatterns...)
	return cfg
}

// SetRootPath repoints the engine at another local root. Operations started
// afterwards use the new root.
func (e *Engine) SetRootPath(root string) error {
	if strings.TrimSpace(root) == "" {
		return pperrors.NewConfigError("missing required settings: root_path", nil)
	}
	e.cfgMu.Lock()
	e.cfg.RootPath = root
	e.cfgMu.Unlock()
	return nil
}

// Metrics returns counters for the operations run so far
func (e *Engine) Metrics() Metrics {
	return e.metrics.snapshot()
}

// run executes fn under the guard and records the outcome
func (e *Engine) run(ctx context.Context, op models.OperationType, path string, fn func(*operation) error) error {
	release, err := e.guard.acquire(ctx)
	if err != nil {
		return pperrors.NewSyncError(string(op), path, err)
	}
	defer release()

	cfg := e.Config()
	tx := e.createTransaction(op, path, cfg)
	o := &operation{
		ctx: ctx,
		cfg: cfg,
		tx:  tx,
		log: e.logger.With(zap.String("op", string(op)), zap.String("transaction_id", tx.ID)),
	}

	o.log.Info("Operation started", zap.String("path", path), zap.String("root", cfg.RootPath))

	err = fn(o)
	tx.Finish(err)
	e.saveTransaction(tx, o.log)
	e.metrics.record(tx)

	if err != nil {
		o.log.Error("Operation failed", zap.Error(err), zap.Duration("duration", tx.Duration()))
		return err
	}

	o.log.Info("Operation finished",
		zap.String("status", string(tx.Status)),
		zap.Int("conflicts", len(tx.Conflicts)),
		zap.Duration("duration", tx.Duration()))
	return nil
}

// Download makes sure the entry id exists below the root, pulling the
// repository when it does not, and returns its local path. An entry that
// already exists locally is returned without contacting the repository.
func (e *Engine) Download(ctx context.Context, id string, cb ConflictCallback) (string, error) {
	var target string
	err := e.run(ctx, models.OperationDownload, id, func(o *operation) error {
		if _, err := e.ensureRoot(o); err != nil {
			return err
		}

		resolved, err := o.resolvePath(id)
		if err != nil {
			return err
		}
		found, err := o.exists(resolved)
		if err != nil {
			return err
		}
		target = resolved
		if found {
			o.tx.Status = models.TransactionStatusSkipped
			return nil
		}

		if err := e.ensureWorkingCopy(o); err != nil {
			return err
		}
		return e.updateAndResolve(o, cb)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

// Upload puts path under version control and commits it. It returns "" when
// there is nothing to upload: the root did not exist yet or path is missing.
func (e *Engine) Upload(ctx context.Context, path string, cb ConflictCallback) (string, error) {
	var result string
	err := e.run(ctx, models.OperationUpload, path, func(o *operation) error {
		created, err := e.ensureRoot(o)
		if err != nil {
			return err
		}
		if created {
			o.tx.Status = models.TransactionStatusSkipped
			return nil
		}

		target, err := o.resolvePath(path)
		if err != nil {
			return err
		}
		found, err := o.exists(target)
		if err != nil {
			return err
		}
		if !found {
			o.tx.Status = models.TransactionStatusSkipped
			return nil
		}

		if err := e.ensureWorkingCopy(o); err != nil {
			return err
		}
		if err := e.updateAndResolve(o, cb); err != nil {
			return err
		}

		info, err := e.client.Info(o.ctx, target)
		if err != nil {
			return pperrors.NewSyncError(o.name(), target, err)
		}
		if !info.Exists {
			if err := e.client.Add(o.ctx, target); err != nil {
				return pperrors.NewSyncError(o.name(), target, err)
			}
			o.tx.Added = append(o.tx.Added, target)
		}

		if err := e.commit(o, fmt.Sprintf("Add file %s to repository", path)); err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// Delete removes path from the repository. A path missing locally is a no-op.
// The working copy is refreshed first so the deletion is not committed
// against a stale revision.
func (e *Engine) Delete(ctx context.Context, path string, cb ConflictCallback) error {
	return e.run(ctx, models.OperationDelete, path, func(o *operation) error {
		target, err := o.resolvePath(path)
		if err != nil {
			return err
		}
		found, err := o.exists(target)
		if err != nil {
			return err
		}
		if !found {
			o.tx.Status = models.TransactionStatusSkipped
			return nil
		}

		if _, err := e.ensureRoot(o); err != nil {
			return err
		}
		if err := e.ensureWorkingCopy(o); err != nil {
			return err
		}
		if err := e.updateAndResolve(o, cb); err != nil {
			return err
		}

		// the refresh may already have removed it
		if found, err = o.exists(target); err != nil || !found {
			return err
		}

		info, err := e.client.Info(o.ctx, target)
		if err != nil {
			return pperrors.NewSyncError(o.name(), target, err)
		}
		if !info.Exists {
			if err := os.RemoveAll(target); err != nil {
				return pperrors.NewSyncError(o.name(), target,
					pperrors.NewFileSystemError("failed to remove unversioned entry", err))
			}
			return nil
		}

		if err := e.client.Delete(o.ctx, target, true); err != nil {
			return pperrors.NewSyncError(o.name(), target, err)
		}
		return e.commit(o, fmt.Sprintf("File %s deleted", path))
	})
}

// Pull integrates remote changes into the root, resolving conflicts with cb
func (e *Engine) Pull(ctx context.Context, cb ConflictCallback) error {
	return e.run(ctx, models.OperationPull, "", func(o *operation) error {
		if _, err := e.ensureRoot(o); err != nil {
			return err
		}
		if err := e.ensureWorkingCopy(o); err != nil {
			return err
		}
		return e.updateAndResolve(o, cb)
	})
}

// Push integrates remote changes, puts every local entry under version
// control and commits all local changes
func (e *Engine) Push(ctx context.Context, cb ConflictCallback) error {
	return e.run(ctx, models.OperationPush, "", func(o *operation) error {
		if _, err := e.ensureRoot(o); err != nil {
			return err
		}
		if err := e.ensureWorkingCopy(o); err != nil {
			return err
		}
		if err := e.updateAndResolve(o, cb); err != nil {
			return err
		}

		root := o.cfg.RootPath
		entries, err := localEntries(root, newIgnoreList(root, o.cfg.IgnorePatterns, o.log))
		if err != nil {
			return pperrors.NewSyncError(o.name(), root,
				pperrors.NewFileSystemError("failed to enumerate local entries", err))
		}

		status, err := e.client.Status(o.ctx, root)
		if err != nil {
			return pperrors.NewSyncError(o.name(), root, err)
		}
		for _, entry := range unversionedEntries(entries, status) {
			if err := e.client.Add(o.ctx, entry); err != nil {
				return pperrors.NewSyncError(o.name(), entry, err)
			}
			o.tx.Added = append(o.tx.Added, entry)
		}

		status, err = e.client.Status(o.ctx, root)
		if err != nil {
			return pperrors.NewSyncError(o.name(), root, err)
		}
		o.tx.Modified = changedEntries(root, status)
		if len(o.tx.Modified) == 0 {
			o.log.Debug("Nothing to commit")
		}

		return e.commit(o, pushMessage(o.tx.Modified))
	})
}

// Status reports local changes below the root. A root that is not a working
// copy yet has no status.
func (e *Engine) Status(ctx context.Context) ([]interfaces.StatusEntry, error) {
	release, err := e.guard.acquire(ctx)
	if err != nil {
		return nil, pperrors.NewSyncError("status", "", err)
	}
	defer release()

	root := e.Config().RootPath
	ok, err := e.client.IsWorkingCopy(ctx, root)
	if err != nil {
		return nil, pperrors.NewSyncError("status", root, err)
	}
	if !ok {
		return nil, nil
	}

	entries, err := e.client.Status(ctx, root)
	if err != nil {
		return nil, pperrors.NewSyncError("status", root, err)
	}
	return entries, nil
}

// RemoteExists reports whether relPath exists in the repository
func (e *Engine) RemoteExists(ctx context.Context, relPath string) (bool, error) {
	release, err := e.guard.acquire(ctx)
	if err != nil {
		return false, pperrors.NewSyncError("remote-exists", relPath, err)
	}
	defer release()

	target := remoteURL(e.Config().RemoteURL, relPath)
	info, err := e.client.Info(ctx, target)
	if err != nil {
		return false, pperrors.NewSyncError("remote-exists", target, err)
	}
	return info.Exists, nil
}

// LatestRevision returns the youngest revision of the repository
func (e *Engine) LatestRevision(ctx context.Context) (int64, error) {
	release, err := e.guard.acquire(ctx)
	if err != nil {
		return 0, pperrors.NewSyncError("latest-revision", "", err)
	}
	defer release()

	target := e.Config().RemoteURL
	info, err := e.client.Info(ctx, target)
	if err != nil {
		return 0, pperrors.NewSyncError("latest-revision", target, err)
	}
	return info.Revision, nil
}

// ensureRoot creates the root directory if needed and reports whether it did
func (e *Engine) ensureRoot(o *operation) (bool, error) {
	root := o.cfg.RootPath
	found, err := o.exists(root)
	if err != nil || found {
		return false, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return false, pperrors.NewSyncError(o.name(), root,
			pperrors.NewFileSystemError("failed to create root directory", err))
	}
	o.log.Debug("Created root directory", zap.String("root", root))
	return true, nil
}

// ensureWorkingCopy checks the root out when it is not a working copy yet
func (e *Engine) ensureWorkingCopy(o *operation) error {
	root := o.cfg.RootPath
	ok, err := e.client.IsWorkingCopy(o.ctx, root)
	if err != nil {
		return pperrors.NewSyncError(o.name(), root, err)
	}
	if ok {
		return nil
	}

	o.log.Info("Checking out working copy",
		zap.String("url", o.cfg.RemoteURL),
		zap.String("root", root))
	if err := e.client.Checkout(o.ctx, o.cfg.RemoteURL, root, o.cfg.Depth()); err != nil {
		return pperrors.NewSyncError(o.name(), root, err)
	}
	return nil
}

// updateAndResolve updates the root, capturing conflicts in the tracker, and
// applies the decisions of cb to them
func (e *Engine) updateAndResolve(o *operation, cb ConflictCallback) error {
	root := o.cfg.RootPath
	e.tracker.Reset(root)

	if err := e.client.Update(o.ctx, root, e.tracker.Record); err != nil {
		return pperrors.NewSyncError(o.name(), root, err)
	}

	record := e.tracker.Snapshot()
	if !record.HasConflict {
		return nil
	}

	o.tx.Conflicts = record.Entries
	o.tx.ConflictOn = record.Kind
	o.tx.ConflictKinds = record.Kinds
	o.log.Info("Update raised conflicts",
		zap.Int("conflicts", len(record.Entries)),
		zap.String("kind", record.Kind.String()))

	applied, err := e.resolve(o.ctx, o.name(), record, cb)
	o.tx.Resolutions = applied
	return err
}

func (e *Engine) commit(o *operation, message string) error {
	o.tx.Message = message
	if err := e.client.Commit(o.ctx, o.cfg.RootPath, message); err != nil {
		return pperrors.NewSyncError(o.name(), o.cfg.RootPath, err)
	}
	return nil
}

// resolvePath makes path absolute against the root and rejects paths outside it
func (o *operation) resolvePath(path string) (string, error) {
	root := filepath.Clean(o.cfg.RootPath)
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pperrors.NewValidationError("path is outside the root", err).WithPath(path)
	}
	return target, nil
}

// exists reports whether path is present. Stat failures other than a
// missing entry are returned as file system errors.
func (o *operation) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, pperrors.NewSyncError(o.name(), path,
			pperrors.NewFileSystemError("failed to stat entry", err))
	}
}

func remoteURL(base, rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if rel == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + rel
}
