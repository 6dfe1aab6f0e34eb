package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/internal/database"
	"github.com/pulsepoint/svnsync/pkg/models"
)

const (
	adminDir = ".svn"
	dbName   = "wc.db"

	bucketMeta      = "wc_meta"
	bucketBase      = "wc_base"
	bucketSchedule  = "wc_schedule"
	bucketConflicts = "wc_conflicts"

	metaKey = "state"

	scheduleAdd    = "add"
	scheduleDelete = "delete"
)

var wcBuckets = []string{bucketMeta, bucketBase, bucketSchedule, bucketConflicts}

type wcMeta struct {
	URL      string           `json:"url"`
	Revision int64            `json:"revision"`
	Depth    interfaces.Depth `json:"depth"`
}

type conflictState struct {
	Kind    models.ConflictKind `json:"kind"`
	Mine    []byte              `json:"mine,omitempty"`
	Theirs  []byte              `json:"theirs,omitempty"`
	Markers []string            `json:"markers,omitempty"`
}

// workingCopy is the loaded administrative state of one checkout
type workingCopy struct {
	root      string
	db        *database.Manager
	meta      wcMeta
	base      tree
	schedule  map[string]string
	conflicts map[string]*conflictState
}

// findRoot walks up from p to the directory holding the admin database
func findRoot(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, adminDir, dbName)); err == nil {
			return abs
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return ""
		}
		abs = parent
	}
}

func openWorkingCopy(root string) (*workingCopy, error) {
	db, err := database.NewManager(&database.Options{
		Path:     filepath.Join(root, adminDir, dbName),
		FileMode: 0644,
		Timeout:  time.Second,
		Buckets:  wcBuckets,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Open(); err != nil {
		return nil, err
	}

	wc := &workingCopy{
		root:      root,
		db:        db,
		base:      tree{},
		schedule:  map[string]string{},
		conflicts: map[string]*conflictState{},
	}
	if err := wc.load(); err != nil {
		db.Close()
		return nil, err
	}
	return wc, nil
}

func (w *workingCopy) load() error {
	if err := w.db.Get(bucketMeta, metaKey, &w.meta); err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	return w.db.Transaction(false, func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketBase)).ForEach(func(k, v []byte) error {
			var n node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			w.base[string(k)] = n
			return nil
		}); err != nil {
			return err
		}

		if err := tx.Bucket([]byte(bucketSchedule)).ForEach(func(k, v []byte) error {
			w.schedule[string(k)] = string(v)
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketConflicts)).ForEach(func(k, v []byte) error {
			var c conflictState
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			w.conflicts[string(k)] = &c
			return nil
		})
	})
}

func (w *workingCopy) save() error {
	if err := w.db.Put(bucketMeta, metaKey, w.meta); err != nil {
		return err
	}

	return w.db.Transaction(true, func(tx *bolt.Tx) error {
		for _, name := range []string{bucketBase, bucketSchedule, bucketConflicts} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}

		b := tx.Bucket([]byte(bucketBase))
		for k, n := range w.base {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}

		s := tx.Bucket([]byte(bucketSchedule))
		for k, v := range w.schedule {
			if err := s.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}

		c := tx.Bucket([]byte(bucketConflicts))
		for k, v := range w.conflicts {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if err := c.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *workingCopy) close() error {
	return w.db.Close()
}

func (w *workingCopy) abs(rel string) string {
	if rel == "" {
		return w.root
	}
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func (w *workingCopy) rel(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the working copy %s", p, w.root)
	}
	return cleanRel(rel), nil
}

// versioned reports whether rel is tracked and not scheduled for deletion
func (w *workingCopy) versioned(rel string) bool {
	if rel == "" {
		return true
	}
	switch w.schedule[rel] {
	case scheduleAdd:
		return true
	case scheduleDelete:
		return false
	}
	_, ok := w.base[rel]
	return ok
}

// known returns every path the working copy has metadata for
func (w *workingCopy) known() mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for k := range w.base {
		set.Add(k)
	}
	for k := range w.schedule {
		set.Add(k)
	}
	for k := range w.conflicts {
		set.Add(k)
	}
	return set
}

func (w *workingCopy) hasPendingBelow(rel string) bool {
	prefix := rel + "/"
	for k := range w.schedule {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	for k := range w.conflicts {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func (w *workingCopy) conflictsUnder(rel string) []string {
	var out []string
	for k := range w.conflicts {
		if isUnder(k, rel) {
			out = append(out, k)
		}
	}
	return out
}

// localNode reads the on-disk state of a path
func localNode(abs string) (node, bool, error) {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return node{}, false, nil
	}
	if err != nil {
		return node{}, false, err
	}
	if info.IsDir() {
		return node{IsDir: true}, true, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return node{}, false, err
	}
	return node{Content: data}, true, nil
}

func writeFile(abs string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	return os.WriteFile(abs, content, 0644)
}

func removeIfExists(abs string) error {
	if err := os.RemoveAll(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func mkdirAll(abs string) error {
	return os.MkdirAll(abs, 0755)
}

func removeEmptyDir(abs string) error {
	return os.Remove(abs)
}
