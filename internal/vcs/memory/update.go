package memory

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// update merges head into the working copy and returns the raised conflicts
// in the order they were found. Conflicted paths are left untouched.
func (w *workingCopy) update(head tree, rev int64) ([]interfaces.ConflictEvent, error) {
	paths := w.known()
	for k := range head {
		paths.Add(k)
	}
	sorted := paths.ToSlice()
	sort.Strings(sorted)

	var events []interfaces.ConflictEvent
	var deletes []string

	for _, p := range sorted {
		if _, conflicted := w.conflicts[p]; conflicted {
			continue
		}
		oldNode, inOld := w.base[p]
		newNode, inHead := head[p]

		var ev *interfaces.ConflictEvent
		var err error
		switch {
		case inHead && !inOld:
			ev, err = w.incomingAdd(p, newNode)
		case inOld && !inHead:
			deletes = append(deletes, p)
		case inOld && inHead:
			ev, err = w.incomingEdit(p, oldNode, newNode, rev)
		}
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	// children before their parents
	for i := len(deletes) - 1; i >= 0; i-- {
		ev, err := w.incomingDelete(deletes[i])
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	return events, nil
}

func (w *workingCopy) incomingAdd(p string, n node) (*interfaces.ConflictEvent, error) {
	abs := w.abs(p)
	local, exists, err := localNode(abs)
	if err != nil {
		return nil, err
	}

	if n.IsDir {
		if exists && !local.IsDir {
			return w.raise(p, models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionAdd, Reason: models.ReasonObstructed}, local.Content, nil, nil, ""), nil
		}
		if err := mkdirAll(abs); err != nil {
			return nil, err
		}
		w.base[p] = n
		delete(w.schedule, p)
		return nil, nil
	}

	if !exists {
		if err := writeFile(abs, n.Content); err != nil {
			return nil, err
		}
		w.base[p] = n
		delete(w.schedule, p)
		return nil, nil
	}

	if local.equal(n) {
		w.base[p] = n
		delete(w.schedule, p)
		return nil, nil
	}

	reason := models.ReasonObstructed
	if w.schedule[p] == scheduleAdd {
		reason = models.ReasonAdded
	}
	kind := models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionAdd, Reason: reason}
	return w.raise(p, kind, local.Content, n.Content, nil, ""), nil
}

func (w *workingCopy) incomingEdit(p string, old, n node, rev int64) (*interfaces.ConflictEvent, error) {
	abs := w.abs(p)

	if n.IsDir {
		if w.schedule[p] != scheduleDelete {
			if err := mkdirAll(abs); err != nil {
				return nil, err
			}
		}
		w.base[p] = n
		return nil, nil
	}

	remoteChanged := !old.equal(n)

	if w.schedule[p] == scheduleDelete {
		if !remoteChanged {
			return nil, nil
		}
		kind := models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionEdit, Reason: models.ReasonDeleted}
		return w.raise(p, kind, nil, n.Content, nil, ""), nil
	}

	local, exists, err := localNode(abs)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := writeFile(abs, n.Content); err != nil {
			return nil, err
		}
		w.base[p] = n
		return nil, nil
	}
	if !remoteChanged {
		return nil, nil
	}
	if local.IsDir {
		kind := models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionEdit, Reason: models.ReasonObstructed}
		return w.raise(p, kind, nil, n.Content, nil, ""), nil
	}
	if local.equal(old) || local.equal(n) {
		if !local.equal(n) {
			if err := writeFile(abs, n.Content); err != nil {
				return nil, err
			}
		}
		w.base[p] = n
		return nil, nil
	}

	// both sides edited the file
	markers := []string{
		p + ".mine",
		fmt.Sprintf("%s.r%d", p, w.meta.Revision),
		fmt.Sprintf("%s.r%d", p, rev),
	}
	for i, content := range [][]byte{local.Content, old.Content, n.Content} {
		if err := writeFile(w.abs(markers[i]), content); err != nil {
			return nil, err
		}
	}
	if err := writeFile(abs, mergeMarkers(local.Content, n.Content, rev)); err != nil {
		return nil, err
	}
	w.base[p] = n

	kind := models.ConflictKind{Type: models.ConflictTypeText, Action: models.ActionEdit, Reason: models.ReasonEdited}
	return w.raise(p, kind, local.Content, n.Content, markers, abs), nil
}

func (w *workingCopy) incomingDelete(p string) (*interfaces.ConflictEvent, error) {
	old := w.base[p]
	abs := w.abs(p)
	delete(w.base, p)

	if w.schedule[p] == scheduleDelete {
		delete(w.schedule, p)
		return nil, nil
	}

	if old.IsDir {
		if w.hasPendingBelow(p) {
			w.schedule[p] = scheduleAdd
			return nil, nil
		}
		// only succeeds once the directory is empty; unversioned leftovers keep it
		_ = removeEmptyDir(abs)
		return nil, nil
	}

	local, exists, err := localNode(abs)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	if local.equal(old) {
		return nil, removeIfExists(abs)
	}

	// keep the edited file scheduled for re-addition until resolved
	w.schedule[p] = scheduleAdd
	kind := models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionDelete, Reason: models.ReasonEdited}
	return w.raise(p, kind, local.Content, nil, nil, ""), nil
}

func (w *workingCopy) raise(p string, kind models.ConflictKind, mine, theirs []byte, markers []string, merged string) *interfaces.ConflictEvent {
	w.conflicts[p] = &conflictState{Kind: kind, Mine: mine, Theirs: theirs, Markers: markers}
	return &interfaces.ConflictEvent{
		Path:       filepath.FromSlash(p),
		MergedFile: merged,
		Type:       kind.Type,
		Action:     kind.Action,
		Reason:     kind.Reason,
	}
}

func mergeMarkers(mine, theirs []byte, rev int64) []byte {
	out := []byte("<<<<<<< .mine\n")
	out = append(out, withNewline(mine)...)
	out = append(out, "=======\n"...)
	out = append(out, withNewline(theirs)...)
	out = append(out, fmt.Sprintf(">>>>>>> .r%d\n", rev)...)
	return out
}

func withNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(append([]byte(nil), b...), '\n')
}
