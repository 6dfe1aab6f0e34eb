// Package interfaces defines the core contracts for the svnsync system
package interfaces

import (
	"context"

	"github.com/pulsepoint/svnsync/pkg/models"
)

// VCSClient is the version-control engine the sync operations are composed from.
// Every method blocks until the underlying disk or network work has finished.
type VCSClient interface {
	// Checkout associates localPath with remoteURL, creating the directory if needed
	Checkout(ctx context.Context, remoteURL, localPath string, depth Depth) error

	// Update brings the working copy at localPath to the head revision.
	// sink is invoked once per conflicting item, in the order the engine reports them.
	Update(ctx context.Context, localPath string, sink ConflictSink) error

	// Commit sends all local changes under localPath to the repository
	Commit(ctx context.Context, localPath, message string) error

	// Add schedules an unversioned entry (and its unversioned parents) for addition
	Add(ctx context.Context, path string) error

	// Delete schedules an entry for deletion and removes it from disk
	Delete(ctx context.Context, path string, force bool) error

	// Resolve marks a conflicted entry as resolved using the given accept mode
	Resolve(ctx context.Context, path string, accept Accept) error

	// Status reports the state of every entry under path that is not unmodified
	Status(ctx context.Context, path string) ([]StatusEntry, error)

	// Info describes a working-copy path or a repository URL.
	// A target that is not under version control yields Exists == false and no error.
	Info(ctx context.Context, target string) (*Info, error)

	// IsWorkingCopy reports whether path is the root of, or inside, a working copy
	IsWorkingCopy(ctx context.Context, path string) (bool, error)
}

// ConflictEvent describes one conflict raised during an update
type ConflictEvent struct {
	// Path is relative to the working-copy root
	Path string
	// MergedFile is the absolute path of the file holding the merge result, if any
	MergedFile string
	Type       models.ConflictType
	Action     models.ConflictAction
	Reason     models.ConflictReason
}

// ConflictSink receives conflict events during Update
type ConflictSink func(event ConflictEvent)

// Accept selects which version wins when resolving a conflict
type Accept string

const (
	// AcceptMineFull keeps the local version of the whole file
	AcceptMineFull Accept = "mine-full"
	// AcceptTheirsFull takes the repository version of the whole file
	AcceptTheirsFull Accept = "theirs-full"
	// AcceptWorking keeps the file exactly as it is on disk
	AcceptWorking Accept = "working"
)

// Depth limits how much of the tree a checkout fetches
type Depth string

const (
	DepthEmpty      Depth = "empty"
	DepthFiles      Depth = "files"
	DepthImmediates Depth = "immediates"
	DepthInfinity   Depth = "infinity"
)

// ContentStatus is the local state of a working-copy entry
type ContentStatus string

const (
	StatusNormal      ContentStatus = "normal"
	StatusModified    ContentStatus = "modified"
	StatusAdded       ContentStatus = "added"
	StatusDeleted     ContentStatus = "deleted"
	StatusConflicted  ContentStatus = "conflicted"
	StatusUnversioned ContentStatus = "unversioned"
	StatusMissing     ContentStatus = "missing"
	StatusIgnored     ContentStatus = "ignored"
)

// StatusEntry is one line of working-copy status
type StatusEntry struct {
	Path          string        `json:"path"`
	ContentStatus ContentStatus `json:"content_status"`
	TreeConflict  bool          `json:"tree_conflict,omitempty"`
}

// Info describes a versioned entry
type Info struct {
	Exists   bool   `json:"exists"`
	Revision int64  `json:"revision"`
	URL      string `json:"url,omitempty"`
	Root     string `json:"root,omitempty"`
	IsDir    bool   `json:"is_dir"`
}
