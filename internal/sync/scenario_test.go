package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsepoint/svnsync/internal/database/repositories"
	"github.com/pulsepoint/svnsync/internal/vcs/memory"
	"github.com/pulsepoint/svnsync/pkg/models"
)

const sharedURL = "mem://shared"

// site is one local root synchronized with the shared repository
type site struct {
	root    string
	engine  *Engine
	history *recordingHistory
}

func newShared() (*memory.Repository, *memory.Client) {
	repo := memory.NewRepository(sharedURL)
	return repo, memory.NewClient(repo)
}

func newSite(t *testing.T, client *memory.Client) *site {
	t.Helper()
	root := filepath.Join(t.TempDir(), "root")
	cfg := testConfig(root)
	cfg.RemoteURL = sharedURL

	history := &recordingHistory{}
	engine, err := NewEngine(cfg, client, WithHistory(history))
	require.NoError(t, err)
	return &site{root: root, engine: engine, history: history}
}

func (s *site) path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *site) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path(rel)), 0755))
	require.NoError(t, os.WriteFile(s.path(rel), []byte(content), 0644))
}

func (s *site) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(s.path(rel))
	require.NoError(t, err)
	return string(data)
}

// tree returns every entry below the root except the metadata directory
func (s *site) tree(t *testing.T) mapset.Set[string] {
	t.Helper()
	out := mapset.NewThreadUnsafeSet[string]()
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		if d.IsDir() && d.Name() == MetadataDir {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		out.Add(filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	return out
}

// markers returns leftover conflict marker files
func (s *site) markers(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, rel := range s.tree(t).ToSlice() {
		base := filepath.Base(rel)
		if strings.HasSuffix(base, ".mine") || strings.Contains(base, ".txt.r") {
			out = append(out, rel)
		}
	}
	return out
}

func TestPushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	a := newSite(t, client)

	require.NoError(t, a.engine.Pull(ctx, nil))
	a.write(t, "d/f.txt", "f")
	a.write(t, "d/e/g.txt", "g")
	a.write(t, "top.txt", "top")
	require.NoError(t, a.engine.Push(ctx, nil))

	assert.Equal(t, map[string]string{
		"d/f.txt":   "f",
		"d/e/g.txt": "g",
		"top.txt":   "top",
	}, repo.Files())

	before := a.tree(t)
	for _, rel := range []string{"d", "top.txt"} {
		require.NoError(t, os.RemoveAll(a.path(rel)))
	}
	require.NoError(t, a.engine.Pull(ctx, nil))

	assert.True(t, before.Equal(a.tree(t)), "want %v, got %v", before, a.tree(t))
	assert.Equal(t, "g", a.read(t, "d/e/g.txt"))
}

func TestPushCommitMessageListsChanges(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	a := newSite(t, client)

	require.NoError(t, a.engine.Pull(ctx, nil))
	a.write(t, "b.txt", "b")
	a.write(t, "a.txt", "a")
	require.NoError(t, a.engine.Push(ctx, nil))

	messages := repo.Messages()
	require.NotEmpty(t, messages)
	assert.Equal(t, "Next files were modified:\na.txt\nb.txt\n", messages[len(messages)-1])
	assert.Equal(t, []string{"a.txt", "b.txt"}, a.history.last().Modified)
}

func TestPushSkipsIgnoredEntries(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	a := newSite(t, client)

	require.NoError(t, a.engine.Pull(ctx, nil))
	a.write(t, IgnoreFileName, "*.log\nbuild/\n")
	a.write(t, "keep.txt", "k")
	a.write(t, "debug.log", "noise")
	a.write(t, "build/out.bin", "bin")
	require.NoError(t, a.engine.Push(ctx, nil))

	files := repo.Files()
	assert.Contains(t, files, "keep.txt")
	assert.Contains(t, files, IgnoreFileName)
	assert.NotContains(t, files, "debug.log")
	assert.NotContains(t, files, "build/out.bin")
}

func TestUploadedEntryIsTracked(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	a := newSite(t, client)

	require.NoError(t, a.engine.Pull(ctx, nil))
	a.write(t, "notes/today.txt", "hello")

	got, err := a.engine.Upload(ctx, a.path("notes/today.txt"), nil)
	require.NoError(t, err)
	assert.Equal(t, a.path("notes/today.txt"), got)
	assert.Equal(t, "hello", repo.Files()["notes/today.txt"])

	status, err := a.engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	// nothing left for push to add or commit
	head := repo.Head()
	require.NoError(t, a.engine.Push(ctx, nil))
	assert.Empty(t, a.history.last().Added)
	assert.Equal(t, head, repo.Head())
}

func TestDownloadFetchesRemoteEntry(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	repo.Put("docs/readme.txt", []byte("remote"), "seed")
	b := newSite(t, client)

	got, err := b.engine.Download(ctx, "docs/readme.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, b.path("docs/readme.txt"), got)
	assert.Equal(t, "remote", b.read(t, "docs/readme.txt"))

	// served locally the second time
	repo.Put("docs/readme.txt", []byte("changed"), "edit")
	_, err = b.engine.Download(ctx, "docs/readme.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "remote", b.read(t, "docs/readme.txt"))
	assert.Equal(t, models.TransactionStatusSkipped, b.history.last().Status)
}

func TestDeleteCommitsRemoval(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	repo.Put("x.txt", []byte("x"), "seed")
	a := newSite(t, client)
	require.NoError(t, a.engine.Pull(ctx, nil))

	require.NoError(t, a.engine.Delete(ctx, a.path("x.txt"), nil))
	assert.NoFileExists(t, a.path("x.txt"))
	assert.NotContains(t, repo.Files(), "x.txt")

	messages := repo.Messages()
	assert.Equal(t, "File "+a.path("x.txt")+" deleted", messages[len(messages)-1])

	// deleting again is a no-op
	require.NoError(t, a.engine.Delete(ctx, a.path("x.txt"), nil))
	assert.Equal(t, models.TransactionStatusSkipped, a.history.last().Status)
}

func TestDeleteUnversionedEntryStaysLocal(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	a := newSite(t, client)
	require.NoError(t, a.engine.Pull(ctx, nil))
	a.write(t, "scratch.txt", "s")

	head := repo.Head()
	require.NoError(t, a.engine.Delete(ctx, "scratch.txt", nil))
	assert.NoFileExists(t, a.path("scratch.txt"))
	assert.Equal(t, head, repo.Head())
}

func TestConcurrentEditKeepsLocalByDefault(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	repo.Put("x.txt", []byte("v1"), "seed")
	a := newSite(t, client)
	b := newSite(t, client)
	require.NoError(t, a.engine.Pull(ctx, nil))
	require.NoError(t, b.engine.Pull(ctx, nil))

	a.write(t, "x.txt", "from A")
	require.NoError(t, a.engine.Push(ctx, nil))

	b.write(t, "x.txt", "from B")
	require.NoError(t, b.engine.Pull(ctx, nil))

	assert.Equal(t, "from B", b.read(t, "x.txt"))
	assert.Empty(t, b.markers(t))

	tx := b.history.last()
	assert.Equal(t, []string{b.path("x.txt")}, tx.Conflicts)
	assert.Equal(t, models.ConflictTypeText, tx.ConflictOn.Type)

	// the kept edit wins on the next push
	require.NoError(t, b.engine.Push(ctx, nil))
	assert.Equal(t, "from B", repo.Files()["x.txt"])
}

func TestConcurrentEditKeepRemote(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	repo.Put("x.txt", []byte("v1"), "seed")
	a := newSite(t, client)
	b := newSite(t, client)
	require.NoError(t, a.engine.Pull(ctx, nil))
	require.NoError(t, b.engine.Pull(ctx, nil))

	a.write(t, "x.txt", "from A")
	require.NoError(t, a.engine.Push(ctx, nil))

	b.write(t, "x.txt", "from B")
	require.NoError(t, b.engine.Pull(ctx, PolicyFor(models.KeepRemote)))

	assert.Equal(t, "from A", b.read(t, "x.txt"))
	assert.Empty(t, b.markers(t))

	status, err := b.engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestMultipleConflictsKeepLocal(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	names := []string{"one.txt", "two.txt", "three.txt"}
	for _, name := range names {
		repo.Put(name, []byte("base"), "seed")
	}
	a := newSite(t, client)
	b := newSite(t, client)
	require.NoError(t, a.engine.Pull(ctx, nil))
	require.NoError(t, b.engine.Pull(ctx, nil))

	for _, name := range names {
		a.write(t, name, "A "+name)
		b.write(t, name, "B "+name)
	}
	require.NoError(t, a.engine.Push(ctx, nil))

	var offered []string
	err := b.engine.Pull(ctx, func(paths []string) (models.ResolutionMap, error) {
		offered = paths
		return models.ResolveAll(paths, models.KeepLocal), nil
	})
	require.NoError(t, err)

	assert.Len(t, offered, 3)
	for _, name := range names {
		assert.Contains(t, offered, b.path(name))
		assert.Equal(t, "B "+name, b.read(t, name))
	}
	assert.Empty(t, b.markers(t))
	assert.Len(t, b.history.last().Resolutions, 3)
}

func TestRemoteDeleteOfLocalEdit(t *testing.T) {
	cases := []struct {
		name     string
		decision models.Decision
		kept     bool
	}{
		{name: "keep local", decision: models.KeepLocal, kept: true},
		{name: "keep remote", decision: models.KeepRemote, kept: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo, client := newShared()
			a := newSite(t, client)
			b := newSite(t, client)

			// B uploads x.txt, A picks it up
			require.NoError(t, b.engine.Pull(ctx, nil))
			b.write(t, "x.txt", "original")
			_, err := b.engine.Upload(ctx, b.path("x.txt"), nil)
			require.NoError(t, err)
			require.NoError(t, a.engine.Pull(ctx, nil))
			require.Equal(t, "original", a.read(t, "x.txt"))

			// A deletes it while B edits without pushing
			require.NoError(t, a.engine.Delete(ctx, a.path("x.txt"), nil))
			require.NotContains(t, repo.Files(), "x.txt")
			b.write(t, "x.txt", "edited by B")

			decisions := models.ResolutionMap{b.path("x.txt"): tc.decision}
			err = b.engine.Pull(ctx, func(paths []string) (models.ResolutionMap, error) {
				return decisions, nil
			})
			require.NoError(t, err)

			tx := b.history.last()
			assert.True(t, tx.ConflictOn.IsDeleteEdit())
			assert.Equal(t, []string{b.path("x.txt")}, tx.Conflicts)

			if tc.kept {
				assert.Equal(t, "edited by B", b.read(t, "x.txt"))
				require.NoError(t, b.engine.Push(ctx, nil))
				assert.Equal(t, "edited by B", repo.Files()["x.txt"])
			} else {
				assert.NoFileExists(t, b.path("x.txt"))
				status, err := b.engine.Status(ctx)
				require.NoError(t, err)
				assert.Empty(t, status)
			}
		})
	}
}

func TestRemoteDirectoryDeleteOfLocalEditKeepRemote(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	b := newSite(t, client)

	require.NoError(t, b.engine.Pull(ctx, nil))
	b.write(t, "d/f.txt", "original")
	require.NoError(t, b.engine.Push(ctx, nil))
	require.Equal(t, "original", repo.Files()["d/f.txt"])

	// the directory goes away remotely while B edits the file inside it
	repo.Remove("d", "remove d")
	b.write(t, "d/f.txt", "edited by B")

	err := b.engine.Pull(ctx, func(paths []string) (models.ResolutionMap, error) {
		return models.ResolutionMap{b.path("d/f.txt"): models.KeepRemote}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{b.path("d/f.txt")}, b.history.last().Conflicts)

	assert.Equal(t, 0, b.tree(t).Cardinality())
	status, err := b.engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, b.engine.Push(ctx, nil))
	assert.Empty(t, repo.Files())
}

func TestHistoryIsPersisted(t *testing.T) {
	ctx := context.Background()
	repo, client := newShared()
	repo.Put("x.txt", []byte("v1"), "seed")

	history, err := repositories.OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	a := newSite(t, client)
	cfg := a.engine.Config()
	engine, err := NewEngine(&cfg, client, WithHistory(history))
	require.NoError(t, err)
	b := newSite(t, client)

	require.NoError(t, engine.Pull(ctx, nil))
	require.NoError(t, b.engine.Pull(ctx, nil))
	b.write(t, "x.txt", "from B")
	require.NoError(t, b.engine.Push(ctx, nil))

	a.write(t, "x.txt", "from A")
	require.NoError(t, engine.Pull(ctx, PolicyFor(models.KeepRemote)))

	txs, err := history.Transactions.List()
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.OperationPull, txs[0].Type)
	assert.Equal(t, []string{a.path("x.txt")}, txs[0].Conflicts)

	conflicts, err := history.Conflicts.ListByTransaction(txs[0].ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.KeepRemote, conflicts[0].Decision)
	assert.Equal(t, models.ResolvedTheirsFull, conflicts[0].Action)
	assert.Equal(t, models.ConflictTypeText, conflicts[0].Kind.Type)
}
