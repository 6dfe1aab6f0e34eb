package sync

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// ConflictCallback chooses a decision for every conflicting path.
// paths are absolute and in the order the conflicts were reported.
type ConflictCallback func(paths []string) (models.ResolutionMap, error)

// KeepLocalPolicy keeps local changes for every path. It is used when no callback is given.
func KeepLocalPolicy(paths []string) (models.ResolutionMap, error) {
	return models.ResolveAll(paths, models.KeepLocal), nil
}

// KeepRemotePolicy accepts the repository version for every path
func KeepRemotePolicy(paths []string) (models.ResolutionMap, error) {
	return models.ResolveAll(paths, models.KeepRemote), nil
}

// PolicyFor returns the callback applying d to every path
func PolicyFor(d models.Decision) ConflictCallback {
	if d == models.KeepRemote {
		return KeepRemotePolicy
	}
	return KeepLocalPolicy
}

// resolve applies a decision to every entry of record, in order, stopping at
// the first path without a decision or whose resolution fails
func (e *Engine) resolve(ctx context.Context, op string, record models.ConflictRecord, cb ConflictCallback) ([]models.AppliedResolution, error) {
	if !record.HasConflict {
		return nil, nil
	}
	if cb == nil {
		cb = KeepLocalPolicy
	}

	decisions, err := cb(append([]string(nil), record.Entries...))
	if err != nil {
		return nil, pperrors.NewSyncError(op, "", fmt.Errorf("conflict callback: %w", err))
	}

	applied := make([]models.AppliedResolution, 0, len(record.Entries))
	for _, path := range record.Entries {
		decision, ok := decisions[path]
		if !ok {
			return applied, pperrors.NewSyncError(op, path,
				pperrors.NewValidationError("no decision for conflicting path", nil).WithPath(path))
		}

		action, err := e.applyDecision(ctx, path, record.KindOf(path), decision)
		if err != nil {
			return applied, pperrors.NewSyncError(op, path, err)
		}

		e.logger.Debug("Conflict resolved",
			zap.String("op", op),
			zap.String("path", path),
			zap.String("decision", decision.String()),
			zap.String("action", string(action)))
		applied = append(applied, models.AppliedResolution{Path: path, Decision: decision, Action: action})
	}

	return applied, nil
}

func (e *Engine) applyDecision(ctx context.Context, path string, kind models.ConflictKind, decision models.Decision) (models.ResolutionAction, error) {
	if decision != models.KeepLocal && decision != models.KeepRemote {
		return "", pperrors.NewValidationError(fmt.Sprintf("unknown decision %s", decision), nil).WithPath(path)
	}

	if !kind.IsDeleteEdit() {
		if decision == models.KeepLocal {
			return models.ResolvedMineFull, e.client.Resolve(ctx, path, interfaces.AcceptMineFull)
		}
		return models.ResolvedTheirsFull, e.client.Resolve(ctx, path, interfaces.AcceptTheirsFull)
	}

	if decision == models.KeepLocal {
		return models.ResolvedWorking, e.client.Resolve(ctx, path, interfaces.AcceptWorking)
	}

	// honor the remote deletion, then clear the adapter's conflict marker
	if err := os.RemoveAll(path); err != nil {
		return "", pperrors.NewFileSystemError("failed to remove local entry", err).WithPath(path)
	}
	return models.ResolvedRemoved, e.client.Resolve(ctx, path, interfaces.AcceptWorking)
}
