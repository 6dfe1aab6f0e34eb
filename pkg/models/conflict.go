package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConflictType is the adapter's classification of a conflict (text, tree, property).
// It is carried along for history but no resolution logic depends on it.
type ConflictType string

const (
	ConflictTypeText     ConflictType = "text"
	ConflictTypeTree     ConflictType = "tree"
	ConflictTypeProperty ConflictType = "property"
)

// ConflictAction is what the incoming change tried to do to the entry
type ConflictAction string

const (
	ActionEdit    ConflictAction = "edit"
	ActionAdd     ConflictAction = "add"
	ActionDelete  ConflictAction = "delete"
	ActionReplace ConflictAction = "replace"
)

// ConflictReason is the local state that prevented the incoming change from applying
type ConflictReason string

const (
	ReasonEdited      ConflictReason = "edited"
	ReasonObstructed  ConflictReason = "obstructed"
	ReasonDeleted     ConflictReason = "deleted"
	ReasonMissing     ConflictReason = "missing"
	ReasonUnversioned ConflictReason = "unversioned"
	ReasonAdded       ConflictReason = "added"
	ReasonReplaced    ConflictReason = "replaced"
)

// ConflictKind is the type/action/reason triple reported with a conflict
type ConflictKind struct {
	Type   ConflictType   `json:"type,omitempty"`
	Action ConflictAction `json:"action,omitempty"`
	Reason ConflictReason `json:"reason,omitempty"`
}

// IsDeleteEdit reports whether the remote side deleted an entry the local side edited
func (k ConflictKind) IsDeleteEdit() bool {
	return k.Action == ActionDelete && k.Reason == ReasonEdited
}

// String renders the kind as action/reason
func (k ConflictKind) String() string {
	if k.Action == "" && k.Reason == "" {
		return string(k.Type)
	}
	return fmt.Sprintf("%s/%s", k.Action, k.Reason)
}

// ConflictRecord collects the conflicts raised by one update pass.
// HasConflict is true iff Entries is non-empty.
type ConflictRecord struct {
	HasConflict bool         `json:"has_conflict"`
	Kind        ConflictKind `json:"kind"`
	Entries     []string     `json:"entries"`

	// Kinds holds the kind reported for each entry
	Kinds map[string]ConflictKind `json:"kinds,omitempty"`
}

// KindOf returns the kind recorded for path, falling back to the record kind
func (r ConflictRecord) KindOf(path string) ConflictKind {
	if k, ok := r.Kinds[path]; ok {
		return k
	}
	return r.Kind
}

// Decision is the outcome chosen for one conflicting path
type Decision int

const (
	// KeepLocal keeps the local changes
	KeepLocal Decision = iota
	// KeepRemote accepts the remote changes
	KeepRemote
)

// String returns the CLI spelling of the decision
func (d Decision) String() string {
	switch d {
	case KeepLocal:
		return "keep-local"
	case KeepRemote:
		return "keep-remote"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Decision) UnmarshalText(text []byte) error {
	parsed, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDecision converts a CLI or config value into a Decision
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep-local", "keep_local", "local", "mine":
		return KeepLocal, nil
	case "keep-remote", "keep_remote", "remote", "theirs":
		return KeepRemote, nil
	default:
		return KeepLocal, fmt.Errorf("unknown conflict decision %q", s)
	}
}

// ResolutionMap maps a conflicting path to its decision
type ResolutionMap map[string]Decision

// ResolveAll returns a map assigning the same decision to every path
func ResolveAll(paths []string, d Decision) ResolutionMap {
	m := make(ResolutionMap, len(paths))
	for _, p := range paths {
		m[p] = d
	}
	return m
}

// ResolutionAction is what was done to the working copy to apply a decision
type ResolutionAction string

const (
	ResolvedMineFull   ResolutionAction = "mine-full"
	ResolvedTheirsFull ResolutionAction = "theirs-full"
	ResolvedWorking    ResolutionAction = "working"
	ResolvedRemoved    ResolutionAction = "removed"
)

// AppliedResolution records how a single conflicting path was resolved
type AppliedResolution struct {
	Path     string           `json:"path"`
	Decision Decision         `json:"decision"`
	Action   ResolutionAction `json:"action"`
}

// Conflict is a persisted conflict, kept in the history store
type Conflict struct {
	ID            string           `json:"id"`
	TransactionID string           `json:"transaction_id"`
	Path          string           `json:"path"`
	Kind          ConflictKind     `json:"kind"`
	Decision      Decision         `json:"decision"`
	Action        ResolutionAction `json:"action"`
	DetectedAt    time.Time        `json:"detected_at"`
}

// GenerateConflictID generates a unique conflict ID
func GenerateConflictID() string {
	return "conflict_" + uuid.NewString()
}
