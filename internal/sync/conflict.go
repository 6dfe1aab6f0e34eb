package sync

import (
	"path/filepath"
	"sync"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// Tracker accumulates the conflicts raised during one update pass.
// It is clean after Reset and flips to conflicted on the first Record.
type Tracker struct {
	mu         sync.Mutex
	root       string
	record     models.ConflictRecord
	deleteEdit bool
}

// NewTracker creates a clean tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset discards everything recorded so far. Paths reported without a merged
// file are resolved against root.
func (t *Tracker) Reset(root string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
	t.record = models.ConflictRecord{}
	t.deleteEdit = false
}

// Record adds one conflict event. A delete/edit event always sets the record
// kind; other events only set it until a delete/edit event has been seen.
func (t *Tracker) Record(ev interfaces.ConflictEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kind := models.ConflictKind{Type: ev.Type, Action: ev.Action, Reason: ev.Reason}

	var path string
	if kind.IsDeleteEdit() {
		path = filepath.Join(t.root, ev.Path)
		t.record.Kind = kind
		t.deleteEdit = true
	} else {
		path = ev.MergedFile
		if path == "" {
			path = filepath.Join(t.root, ev.Path)
		}
		if !t.deleteEdit {
			t.record.Kind = kind
		}
	}

	if t.record.Kinds == nil {
		t.record.Kinds = make(map[string]models.ConflictKind)
	}
	t.record.Kinds[path] = kind
	t.record.Entries = append(t.record.Entries, path)
	t.record.HasConflict = true
}

// Snapshot returns a copy of the current record
func (t *Tracker) Snapshot() models.ConflictRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := models.ConflictRecord{
		HasConflict: t.record.HasConflict,
		Kind:        t.record.Kind,
		Entries:     append([]string(nil), t.record.Entries...),
	}
	if len(t.record.Kinds) > 0 {
		out.Kinds = make(map[string]models.ConflictKind, len(t.record.Kinds))
		for k, v := range t.record.Kinds {
			out.Kinds[k] = v
		}
	}
	return out
}
