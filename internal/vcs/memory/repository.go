// Package memory implements interfaces.VCSClient against in-process
// repositories. Working-copy metadata lives in a bbolt file under the
// working copy's .svn directory, so two working copies of the same
// repository behave like two independent checkouts.
package memory

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
)

var errOutOfDate = errors.New("out of date")

type node struct {
	IsDir   bool   `json:"is_dir,omitempty"`
	Content []byte `json:"content,omitempty"`
}

func (n node) equal(o node) bool {
	return n.IsDir == o.IsDir && bytes.Equal(n.Content, o.Content)
}

// tree maps slash-separated paths to nodes. The root itself is implicit.
type tree map[string]node

func (t tree) clone() tree {
	out := make(tree, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func (t tree) sortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t tree) removeTree(rel string) {
	for k := range t {
		if isUnder(k, rel) {
			delete(t, k)
		}
	}
}

func (t tree) ensureParents(rel string) {
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := t[dir]; !ok {
			t[dir] = node{IsDir: true}
		}
	}
}

func (t tree) filter(depth interfaces.Depth) tree {
	switch depth {
	case interfaces.DepthEmpty:
		return tree{}
	case interfaces.DepthFiles, interfaces.DepthImmediates:
		out := tree{}
		for k, v := range t {
			if strings.Contains(k, "/") {
				continue
			}
			if v.IsDir && depth == interfaces.DepthFiles {
				continue
			}
			out[k] = v
		}
		return out
	default:
		return t
	}
}

type change struct {
	path string
	// nil removes path and everything below it
	node *node
}

// Repository is an in-process versioned tree addressed by URL
type Repository struct {
	mu        sync.RWMutex
	url       string
	revisions []tree
	messages  []string
}

// NewRepository creates an empty repository at revision 0
func NewRepository(url string) *Repository {
	return &Repository{
		url:       strings.TrimRight(url, "/"),
		revisions: []tree{{}},
		messages:  []string{""},
	}
}

// URL returns the repository root URL
func (r *Repository) URL() string {
	return r.url
}

// Head returns the youngest revision number
func (r *Repository) Head() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.revisions) - 1)
}

func (r *Repository) head() (tree, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	last := len(r.revisions) - 1
	return r.revisions[last].clone(), int64(last)
}

// Read returns the head content of a file
func (r *Repository) Read(rel string) ([]byte, bool) {
	head, _ := r.head()
	n, ok := head[cleanRel(rel)]
	if !ok || n.IsDir {
		return nil, false
	}
	return append([]byte(nil), n.Content...), true
}

// Files returns the head content of every file, keyed by slash-separated path
func (r *Repository) Files() map[string]string {
	head, _ := r.head()
	out := make(map[string]string)
	for k, n := range head {
		if !n.IsDir {
			out[k] = string(n.Content)
		}
	}
	return out
}

// Messages returns the log message of every committed revision, oldest first
func (r *Repository) Messages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.messages[1:]...)
}

// Put commits a file directly, as another client would
func (r *Repository) Put(rel string, content []byte, message string) int64 {
	rev, _ := r.commit(nil, []change{{path: cleanRel(rel), node: &node{Content: content}}}, message)
	return rev
}

// Mkdir commits a directory directly
func (r *Repository) Mkdir(rel, message string) int64 {
	rev, _ := r.commit(nil, []change{{path: cleanRel(rel), node: &node{IsDir: true}}}, message)
	return rev
}

// Remove commits the deletion of an entry and everything below it
func (r *Repository) Remove(rel, message string) int64 {
	rev, _ := r.commit(nil, []change{{path: cleanRel(rel)}}, message)
	return rev
}

// commit applies changes on top of head. When base is non-nil every changed
// path must still match base in head, otherwise the commit is out of date.
func (r *Repository) commit(base tree, changes []change, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head := r.revisions[len(r.revisions)-1]
	if base != nil {
		for _, ch := range changes {
			h, inHead := head[ch.path]
			b, inBase := base[ch.path]
			if inHead != inBase || (inHead && !h.equal(b)) {
				return 0, fmt.Errorf("%w: %s", errOutOfDate, ch.path)
			}
		}
	}

	next := head.clone()
	for _, ch := range changes {
		if ch.node == nil {
			next.removeTree(ch.path)
			continue
		}
		next.ensureParents(ch.path)
		next[ch.path] = *ch.node
	}

	r.revisions = append(r.revisions, next)
	r.messages = append(r.messages, message)
	return int64(len(r.revisions) - 1), nil
}

func cleanRel(rel string) string {
	rel = path.Clean(filepath.ToSlash(rel))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "." {
		return ""
	}
	return rel
}

// isUnder reports whether p is dir or lies below it. Everything is under "".
func isUnder(p, dir string) bool {
	return dir == "" || p == dir || strings.HasPrefix(p, dir+"/")
}
