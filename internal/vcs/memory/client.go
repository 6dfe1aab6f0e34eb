package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/pkg/logger"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// Client implements interfaces.VCSClient over registered in-process repositories
type Client struct {
	mu     sync.Mutex
	repos  map[string]*Repository
	logger *zap.Logger
}

var _ interfaces.VCSClient = (*Client)(nil)

// NewClient creates a client that can reach the given repositories
func NewClient(repos ...*Repository) *Client {
	c := &Client{
		repos:  make(map[string]*Repository),
		logger: logger.Named("vcs.memory"),
	}
	for _, r := range repos {
		c.Register(r)
	}
	return c
}

// Register makes a repository reachable by its URL
func (c *Client) Register(repo *Repository) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos[repo.URL()] = repo
}

// locate maps a URL to a repository and the path inside it
func (c *Client) locate(u string) (*Repository, string, error) {
	u = strings.TrimRight(u, "/")
	for root, repo := range c.repos {
		if u == root {
			return repo, "", nil
		}
		if strings.HasPrefix(u, root+"/") {
			return repo, cleanRel(strings.TrimPrefix(u, root+"/")), nil
		}
	}
	return nil, "", fmt.Errorf("unable to connect to a repository at URL '%s'", u)
}

func (c *Client) open(p string) (*workingCopy, error) {
	root := findRoot(p)
	if root == "" {
		return nil, fmt.Errorf("'%s' is not a working copy", p)
	}
	return openWorkingCopy(root)
}

// Checkout creates a working copy of a repository root
func (c *Client) Checkout(ctx context.Context, remoteURL, localPath string, depth interfaces.Depth) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, rel, err := c.locate(remoteURL)
	if err != nil {
		return err
	}
	if rel != "" {
		return fmt.Errorf("checkout of '%s': only repository roots can be checked out", remoteURL)
	}

	abs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	if findRoot(abs) == abs {
		wc, err := openWorkingCopy(abs)
		if err != nil {
			return err
		}
		defer wc.close()
		if wc.meta.URL != repo.URL() {
			return fmt.Errorf("'%s' is already a working copy for a different URL", localPath)
		}
		return nil
	}

	if err := mkdirAll(abs); err != nil {
		return err
	}
	wc, err := openWorkingCopy(abs)
	if err != nil {
		return err
	}
	defer wc.close()

	if depth == "" {
		depth = interfaces.DepthInfinity
	}
	head, rev := repo.head()
	head = head.filter(depth)
	for _, p := range head.sortedKeys() {
		n := head[p]
		target := wc.abs(p)
		if n.IsDir {
			if err := mkdirAll(target); err != nil {
				return err
			}
		} else if _, exists, err := localNode(target); err != nil {
			return err
		} else if !exists {
			// existing local files are kept and show up as modified
			if err := writeFile(target, n.Content); err != nil {
				return err
			}
		}
		wc.base[p] = n
	}
	wc.meta = wcMeta{URL: repo.URL(), Revision: rev, Depth: depth}

	c.logger.Debug("Checked out working copy",
		zap.String("url", remoteURL),
		zap.String("path", abs),
		zap.Int64("revision", rev))
	return wc.save()
}

// Update brings the whole working copy containing localPath to head
func (c *Client) Update(ctx context.Context, localPath string, sink interfaces.ConflictSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(localPath)
	if err != nil {
		return err
	}
	defer wc.close()

	repo, _, err := c.locate(wc.meta.URL)
	if err != nil {
		return err
	}

	head, rev := repo.head()
	events, err := wc.update(head.filter(wc.meta.Depth), rev)
	if err != nil {
		return err
	}
	wc.meta.Revision = rev
	if err := wc.save(); err != nil {
		return err
	}

	c.logger.Debug("Updated working copy",
		zap.String("path", wc.root),
		zap.Int64("revision", rev),
		zap.Int("conflicts", len(events)))

	if sink != nil {
		for _, ev := range events {
			sink(ev)
		}
	}
	return nil
}

// Commit sends every local change in the working copy as one new revision
func (c *Client) Commit(ctx context.Context, localPath, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(localPath)
	if err != nil {
		return err
	}
	defer wc.close()

	if n := len(wc.conflicts); n > 0 {
		return fmt.Errorf("commit failed: %d entries remain in conflict", n)
	}

	repo, _, err := c.locate(wc.meta.URL)
	if err != nil {
		return err
	}

	changes, err := wc.collectChanges()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	rev, err := repo.commit(wc.base, changes, message)
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	for _, ch := range changes {
		if ch.node == nil {
			wc.base.removeTree(ch.path)
			continue
		}
		wc.base[ch.path] = *ch.node
	}
	wc.schedule = map[string]string{}
	if wc.meta.Revision == rev-1 {
		wc.meta.Revision = rev
	}

	c.logger.Debug("Committed revision",
		zap.Int64("revision", rev),
		zap.Int("changes", len(changes)))
	return wc.save()
}

func (w *workingCopy) collectChanges() ([]change, error) {
	paths := w.known().ToSlice()
	sort.Strings(paths)

	var changes []change
	for _, p := range paths {
		switch w.schedule[p] {
		case scheduleDelete:
			changes = append(changes, change{path: p})
		case scheduleAdd:
			n, exists, err := localNode(w.abs(p))
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("'%s' is scheduled for addition, but is missing", w.abs(p))
			}
			changes = append(changes, change{path: p, node: &n})
		default:
			b, ok := w.base[p]
			if !ok || b.IsDir {
				continue
			}
			n, exists, err := localNode(w.abs(p))
			if err != nil {
				return nil, err
			}
			if !exists || n.IsDir {
				continue
			}
			if !n.equal(b) {
				changes = append(changes, change{path: p, node: &n})
			}
		}
	}
	return changes, nil
}

// Add schedules an unversioned entry, its unversioned parents and, for a
// directory, everything below it
func (c *Client) Add(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(p)
	if err != nil {
		return err
	}
	defer wc.close()

	rel, err := wc.rel(p)
	if err != nil {
		return err
	}
	if wc.versioned(rel) {
		return fmt.Errorf("'%s' is already under version control", p)
	}

	n, exists, err := localNode(wc.abs(rel))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("'%s' not found", p)
	}

	for dir := parentOf(rel); dir != ""; dir = parentOf(dir) {
		if !wc.versioned(dir) {
			wc.schedule[dir] = scheduleAdd
		}
	}
	wc.schedule[rel] = scheduleAdd

	if n.IsDir {
		err := filepath.WalkDir(wc.abs(rel), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && d.Name() == adminDir {
				return filepath.SkipDir
			}
			child, err := wc.rel(path)
			if err != nil {
				return err
			}
			if !wc.versioned(child) {
				wc.schedule[child] = scheduleAdd
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return wc.save()
}

// Delete schedules an entry for deletion and removes it from disk.
// Without force, entries with local modifications are refused.
func (c *Client) Delete(ctx context.Context, p string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(p)
	if err != nil {
		return err
	}
	defer wc.close()

	rel, err := wc.rel(p)
	if err != nil {
		return err
	}
	if rel == "" {
		return fmt.Errorf("cannot delete the working copy root '%s'", p)
	}
	if len(wc.conflictsUnder(rel)) > 0 {
		return fmt.Errorf("'%s' remains in conflict", p)
	}

	switch {
	case wc.schedule[rel] == scheduleAdd:
		if !force {
			return fmt.Errorf("'%s' has local modifications; use force to delete it", p)
		}
		for k := range wc.schedule {
			if isUnder(k, rel) {
				delete(wc.schedule, k)
			}
		}
	case wc.versioned(rel):
		if !force && wc.modifiedUnder(rel) {
			return fmt.Errorf("'%s' has local modifications; use force to delete it", p)
		}
		for k := range wc.schedule {
			if isUnder(k, rel) {
				delete(wc.schedule, k)
			}
		}
		for k := range wc.base {
			if isUnder(k, rel) {
				wc.schedule[k] = scheduleDelete
			}
		}
	default:
		return fmt.Errorf("'%s' is not under version control", p)
	}

	if err := removeIfExists(wc.abs(rel)); err != nil {
		return err
	}
	return wc.save()
}

func (w *workingCopy) modifiedUnder(rel string) bool {
	for k := range w.schedule {
		if isUnder(k, rel) && w.schedule[k] == scheduleAdd {
			return true
		}
	}
	for k, b := range w.base {
		if !isUnder(k, rel) || b.IsDir {
			continue
		}
		n, exists, err := localNode(w.abs(k))
		if err != nil || (exists && !n.equal(b)) {
			return true
		}
	}
	return false
}

// Resolve clears every conflict at or below path using accept
func (c *Client) Resolve(ctx context.Context, p string, accept interfaces.Accept) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch accept {
	case interfaces.AcceptMineFull, interfaces.AcceptTheirsFull, interfaces.AcceptWorking:
	default:
		return fmt.Errorf("unsupported accept mode '%s'", accept)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(p)
	if err != nil {
		return err
	}
	defer wc.close()

	rel, err := wc.rel(p)
	if err != nil {
		return err
	}

	targets := wc.conflictsUnder(rel)
	if len(targets) == 0 {
		return nil
	}
	sort.Strings(targets)
	for _, t := range targets {
		if err := wc.resolve(t, accept); err != nil {
			return err
		}
	}

	c.logger.Debug("Resolved conflicts",
		zap.String("path", p),
		zap.String("accept", string(accept)),
		zap.Int("count", len(targets)))
	return wc.save()
}

func (w *workingCopy) resolve(p string, accept interfaces.Accept) error {
	conflict := w.conflicts[p]
	abs := w.abs(p)
	discarded := false

	switch {
	case conflict.Kind.Type == models.ConflictTypeText:
		switch accept {
		case interfaces.AcceptMineFull:
			if err := writeFile(abs, conflict.Mine); err != nil {
				return err
			}
		case interfaces.AcceptTheirsFull:
			if err := writeFile(abs, conflict.Theirs); err != nil {
				return err
			}
		}

	case conflict.Kind.IsDeleteEdit():
		if accept == interfaces.AcceptTheirsFull {
			if err := removeIfExists(abs); err != nil {
				return err
			}
		}
		if _, exists, err := localNode(abs); err != nil {
			return err
		} else if !exists {
			delete(w.schedule, p)
			discarded = true
		}

	case conflict.Kind.Action == models.ActionEdit && conflict.Kind.Reason == models.ReasonDeleted:
		w.base[p] = node{Content: conflict.Theirs}
		if accept == interfaces.AcceptTheirsFull {
			delete(w.schedule, p)
			if err := writeFile(abs, conflict.Theirs); err != nil {
				return err
			}
		}

	default:
		if accept == interfaces.AcceptTheirsFull {
			if err := removeIfExists(abs); err != nil {
				return err
			}
			if err := writeFile(abs, conflict.Theirs); err != nil {
				return err
			}
		}
		w.base[p] = node{Content: conflict.Theirs}
		delete(w.schedule, p)
	}

	for _, m := range conflict.Markers {
		if err := removeIfExists(w.abs(m)); err != nil {
			return err
		}
	}
	delete(w.conflicts, p)
	if discarded {
		w.pruneDeletedParents(p)
	}
	return nil
}

// pruneDeletedParents drops the parents of p that were deleted in the
// repository and only stayed behind to hold p
func (w *workingCopy) pruneDeletedParents(p string) {
	for dir := parentOf(p); dir != ""; dir = parentOf(dir) {
		if _, versioned := w.base[dir]; versioned {
			return
		}
		if w.schedule[dir] != scheduleAdd || w.hasPendingBelow(dir) {
			return
		}
		// unversioned leftovers keep the directory
		if err := removeEmptyDir(w.abs(dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return
		}
		delete(w.schedule, dir)
	}
}

// Status lists every entry at or below path that is not unmodified, sorted by path
func (c *Client) Status(ctx context.Context, p string) ([]interfaces.StatusEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wc, err := c.open(p)
	if err != nil {
		return nil, err
	}
	defer wc.close()

	rel, err := wc.rel(p)
	if err != nil {
		return nil, err
	}

	known := wc.known()
	var out []interfaces.StatusEntry
	for _, k := range known.ToSlice() {
		if !isUnder(k, rel) {
			continue
		}
		entry, err := wc.statusOf(k)
		if err != nil {
			return nil, err
		}
		if entry.ContentStatus != interfaces.StatusNormal {
			out = append(out, entry)
		}
	}

	start := wc.abs(rel)
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return nil
			}
			return err
		}
		if d.IsDir() && d.Name() == adminDir {
			return filepath.SkipDir
		}
		k, err := wc.rel(path)
		if err != nil || k == "" {
			return err
		}
		if known.Contains(k) {
			return nil
		}
		out = append(out, interfaces.StatusEntry{Path: path, ContentStatus: interfaces.StatusUnversioned})
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (w *workingCopy) statusOf(p string) (interfaces.StatusEntry, error) {
	entry := interfaces.StatusEntry{Path: w.abs(p), ContentStatus: interfaces.StatusNormal}

	if conflict, ok := w.conflicts[p]; ok {
		entry.ContentStatus = interfaces.StatusConflicted
		entry.TreeConflict = conflict.Kind.Type == models.ConflictTypeTree
		return entry, nil
	}

	n, exists, err := localNode(entry.Path)
	if err != nil {
		return entry, err
	}

	switch w.schedule[p] {
	case scheduleDelete:
		entry.ContentStatus = interfaces.StatusDeleted
		return entry, nil
	case scheduleAdd:
		if !exists {
			entry.ContentStatus = interfaces.StatusMissing
		} else {
			entry.ContentStatus = interfaces.StatusAdded
		}
		return entry, nil
	}

	b := w.base[p]
	switch {
	case !exists:
		entry.ContentStatus = interfaces.StatusMissing
	case b.IsDir != n.IsDir:
		entry.ContentStatus = interfaces.StatusModified
	case !b.IsDir && !n.equal(b):
		entry.ContentStatus = interfaces.StatusModified
	}
	return entry, nil
}

// Info describes a working-copy path or a repository URL
func (c *Client) Info(ctx context.Context, target string) (*interfaces.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.Contains(target, "://") {
		repo, rel, err := c.locate(target)
		if err != nil {
			return nil, err
		}
		head, rev := repo.head()
		info := &interfaces.Info{URL: target, Root: repo.URL()}
		if rel == "" {
			info.Exists, info.IsDir, info.Revision = true, true, rev
			return info, nil
		}
		if n, ok := head[rel]; ok {
			info.Exists, info.IsDir, info.Revision = true, n.IsDir, rev
		}
		return info, nil
	}

	root := findRoot(target)
	if root == "" {
		return &interfaces.Info{}, nil
	}
	wc, err := openWorkingCopy(root)
	if err != nil {
		return nil, err
	}
	defer wc.close()

	rel, err := wc.rel(target)
	if err != nil {
		return nil, err
	}
	if !wc.versioned(rel) {
		if _, conflicted := wc.conflicts[rel]; !conflicted {
			return &interfaces.Info{}, nil
		}
	}

	info := &interfaces.Info{
		Exists:   true,
		Revision: wc.meta.Revision,
		URL:      wc.meta.URL,
		Root:     wc.meta.URL,
		IsDir:    rel == "",
	}
	if rel != "" {
		info.URL = wc.meta.URL + "/" + rel
		if b, ok := wc.base[rel]; ok {
			info.IsDir = b.IsDir
		} else if n, exists, err := localNode(wc.abs(rel)); err == nil && exists {
			info.IsDir = n.IsDir
		}
	}
	return info, nil
}

// IsWorkingCopy reports whether path lies inside a working copy
func (c *Client) IsWorkingCopy(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return findRoot(p) != "", nil
}

func parentOf(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}
