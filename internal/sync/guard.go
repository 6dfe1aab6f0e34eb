package sync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
)

const lockRetryDelay = 100 * time.Millisecond

// guard serializes operations on one working copy. The mutex orders callers
// of a single engine; the optional file lock extends that across processes.
type guard struct {
	mu    sync.Mutex
	flock *flock.Flock
}

func newGuard(lockFile string) *guard {
	g := &guard{}
	if lockFile != "" {
		g.flock = flock.New(lockFile)
	}
	return g
}

// acquire blocks until the working copy is exclusively held and returns the
// matching release function
func (g *guard) acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()

	if g.flock == nil {
		return g.mu.Unlock, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.flock.Path()), 0755); err != nil {
		g.mu.Unlock()
		return nil, pperrors.NewFileSystemError("failed to create lock directory", err).WithPath(g.flock.Path())
	}

	locked, err := g.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		g.mu.Unlock()
		return nil, pperrors.NewFileSystemError("failed to acquire working-copy lock", err).WithPath(g.flock.Path())
	}

	return func() {
		g.flock.Unlock()
		g.mu.Unlock()
	}, nil
}
