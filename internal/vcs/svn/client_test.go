package svn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
	"github.com/pulsepoint/svnsync/pkg/models"
)

const statusDoc = `<?xml version="1.0" encoding="UTF-8"?>
<status>
<target path="/wc">
<entry path="/wc/a.txt">
<wc-status item="conflicted" props="none" revision="3">
<commit revision="2"><author>alice</author><date>2024-01-01T00:00:00.000000Z</date></commit>
</wc-status>
</entry>
<entry path="/wc/b.txt">
<wc-status item="modified" props="none" revision="3"></wc-status>
</entry>
<entry path="/wc/docs">
<wc-status item="unversioned" props="none"></wc-status>
</entry>
<entry path="/wc/x.txt">
<wc-status item="added" props="none" revision="-1" tree-conflicted="true"></wc-status>
</entry>
<entry path="/wc/p.txt">
<wc-status item="normal" props="conflicted" revision="3"></wc-status>
</entry>
<entry path="/wc/ok.txt">
<wc-status item="normal" props="none" revision="3"></wc-status>
</entry>
</target>
</status>`

const conflictInfoDoc = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry path="/wc/a.txt" revision="3" kind="file">
<url>https://svn.example.com/repo/a.txt</url>
<conflict type="text" operation="update">
<prev-base-file>a.txt.r2</prev-base-file>
<prev-wc-file>a.txt.mine</prev-wc-file>
<cur-base-file>a.txt.r3</cur-base-file>
</conflict>
</entry>
<entry path="/wc/x.txt" revision="3" kind="file">
<url>https://svn.example.com/repo/x.txt</url>
<tree-conflict victim="x.txt" kind="file" operation="update" action="delete" reason="edit"></tree-conflict>
</entry>
<entry path="/wc/p.txt" revision="3" kind="file">
<url>https://svn.example.com/repo/p.txt</url>
<conflict type="property" operation="update"><prop-file>p.txt.prej</prop-file></conflict>
</entry>
</info>`

const rootInfoDoc = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry kind="dir" path="." revision="42">
<url>https://svn.example.com/repo</url>
<repository><root>https://svn.example.com/repo</root><uuid>00000000-0000-0000-0000-000000000000</uuid></repository>
<wc-info><wcroot-abspath>/wc</wcroot-abspath></wc-info>
</entry>
</info>`

type call struct {
	args []string
}

// fakeRunner answers svn invocations by subcommand
type fakeRunner struct {
	calls     []call
	responses map[string]func(args []string) (*result, error)
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (*result, error) {
	f.calls = append(f.calls, call{args: args})
	if fn, ok := f.responses[args[0]]; ok {
		return fn(args)
	}
	return &result{}, nil
}

func (f *fakeRunner) subcommands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.args[0])
	}
	return out
}

func stdout(doc string) func([]string) (*result, error) {
	return func([]string) (*result, error) {
		return &result{Stdout: []byte(doc)}, nil
	}
}

func failure(stderr string) func([]string) (*result, error) {
	return func(args []string) (*result, error) {
		res := &result{Stderr: stderr, ExitCode: 1}
		return res, &commandError{Subcommand: args[0], Stderr: stderr, ExitCode: 1, Err: errors.New("exit status 1")}
	}
}

func newTestClient(f *fakeRunner) *Client {
	return &Client{run: f, logger: zap.NewNop()}
}

func TestNewClientGlobalFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Username = "alice"
	cfg.Password = "secret"

	c := NewClient(OptionsFromConfig(cfg))
	r, ok := c.run.(*cliRunner)
	require.True(t, ok)
	assert.Equal(t, "svn", r.binary)
	assert.Equal(t, []string{
		"--non-interactive",
		"--username", "alice",
		"--password-from-stdin",
		"--trust-server-cert-failures=" + trustedFailures,
	}, r.global)
	assert.Equal(t, "secret", r.password)
	assert.NotContains(t, r.global, "secret")

	c = NewClient(Options{Binary: "/opt/svn/bin/svn"})
	r = c.run.(*cliRunner)
	assert.Equal(t, "/opt/svn/bin/svn", r.binary)
	assert.Equal(t, []string{"--non-interactive"}, r.global)
}

func TestCLIRunnerSendsPasswordOnStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "svn")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\"\ncat\n"), 0755))

	r := &cliRunner{
		binary:   script,
		global:   []string{"--non-interactive", "--password-from-stdin"},
		password: "secret",
		logger:   zap.NewNop(),
	}
	res, err := r.Run(context.Background(), "info", "/wc")
	require.NoError(t, err)
	assert.Equal(t, "info /wc --non-interactive --password-from-stdin\nsecret\n", string(res.Stdout))
}

func TestParseStatus(t *testing.T) {
	entries, err := parseStatus([]byte(statusDoc))
	require.NoError(t, err)
	assert.Equal(t, []interfaces.StatusEntry{
		{Path: "/wc/a.txt", ContentStatus: interfaces.StatusConflicted},
		{Path: "/wc/b.txt", ContentStatus: interfaces.StatusModified},
		{Path: "/wc/docs", ContentStatus: interfaces.StatusUnversioned},
		{Path: "/wc/x.txt", ContentStatus: interfaces.StatusAdded, TreeConflict: true},
		{Path: "/wc/p.txt", ContentStatus: interfaces.StatusConflicted},
		{Path: "/wc/ok.txt", ContentStatus: interfaces.StatusNormal},
	}, entries)

	_, err = parseStatus([]byte("<status><target"))
	assert.Error(t, err)
}

func TestConflictKind(t *testing.T) {
	entries, err := parseInfo([]byte(conflictInfoDoc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	tests := []struct {
		name string
		want models.ConflictKind
	}{
		{"text", models.ConflictKind{Type: models.ConflictTypeText, Action: models.ActionEdit, Reason: models.ReasonEdited}},
		{"delete/edit", models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionDelete, Reason: models.ReasonEdited}},
		{"property", models.ConflictKind{Type: models.ConflictTypeProperty, Action: models.ActionEdit, Reason: models.ReasonEdited}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := entries[i].conflictKind()
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}

	typed, err := parseInfo([]byte(`<info><entry path="/wc/d"><conflict type="tree" operation="update" action="add" reason="obstruction"></conflict></entry></info>`))
	require.NoError(t, err)
	kind, ok := typed[0].conflictKind()
	require.True(t, ok)
	assert.Equal(t, models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionAdd, Reason: models.ReasonObstructed}, kind)

	root, err := parseInfo([]byte(rootInfoDoc))
	require.NoError(t, err)
	_, ok = root[0].conflictKind()
	assert.False(t, ok)
}

func TestUpdateReportsConflicts(t *testing.T) {
	f := &fakeRunner{responses: map[string]func([]string) (*result, error){
		"status": stdout(statusDoc),
		"info":   stdout(conflictInfoDoc),
	}}
	c := newTestClient(f)

	var events []interfaces.ConflictEvent
	err := c.Update(context.Background(), "/wc", func(ev interfaces.ConflictEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "status", "info"}, f.subcommands())
	assert.Equal(t, []string{"update", "--accept", "postpone", "/wc"}, f.calls[0].args)
	assert.Equal(t, []string{"info", "--xml", "/wc/a.txt", "/wc/x.txt", "/wc/p.txt"}, f.calls[2].args)

	assert.Equal(t, []interfaces.ConflictEvent{
		{Path: "a.txt", MergedFile: "/wc/a.txt", Type: models.ConflictTypeText, Action: models.ActionEdit, Reason: models.ReasonEdited},
		{Path: "x.txt", Type: models.ConflictTypeTree, Action: models.ActionDelete, Reason: models.ReasonEdited},
		{Path: "p.txt", MergedFile: "/wc/p.txt", Type: models.ConflictTypeProperty, Action: models.ActionEdit, Reason: models.ReasonEdited},
	}, events)
}

func TestUpdateWithoutConflicts(t *testing.T) {
	f := &fakeRunner{responses: map[string]func([]string) (*result, error){
		"status": stdout(`<status><target path="/wc"></target></status>`),
	}}
	c := newTestClient(f)

	called := false
	require.NoError(t, c.Update(context.Background(), "/wc", func(interfaces.ConflictEvent) { called = true }))
	assert.False(t, called)
	assert.Equal(t, []string{"update", "status"}, f.subcommands())
}

func TestStatusSkipsNormalEntries(t *testing.T) {
	f := &fakeRunner{responses: map[string]func([]string) (*result, error){
		"status": stdout(statusDoc),
	}}
	entries, err := newTestClient(f).Status(context.Background(), "/wc")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	for _, e := range entries {
		assert.NotEqual(t, "/wc/ok.txt", e.Path)
	}
}

func TestInfo(t *testing.T) {
	t.Run("url", func(t *testing.T) {
		f := &fakeRunner{responses: map[string]func([]string) (*result, error){"info": stdout(rootInfoDoc)}}
		info, err := newTestClient(f).Info(context.Background(), "https://svn.example.com/repo")
		require.NoError(t, err)
		assert.Equal(t, &interfaces.Info{
			Exists:   true,
			Revision: 42,
			URL:      "https://svn.example.com/repo",
			Root:     "https://svn.example.com/repo",
			IsDir:    true,
		}, info)
	})

	t.Run("unversioned path", func(t *testing.T) {
		f := &fakeRunner{responses: map[string]func([]string) (*result, error){
			"info": failure("svn: warning: W155010: The node '/wc/new.txt' was not found.\nsvn: E200009: Could not display info for all targets because some targets don't exist"),
		}}
		info, err := newTestClient(f).Info(context.Background(), "/wc/new.txt")
		require.NoError(t, err)
		assert.False(t, info.Exists)
	})

	t.Run("missing url", func(t *testing.T) {
		f := &fakeRunner{responses: map[string]func([]string) (*result, error){
			"info": failure("svn: warning: W170000: URL 'https://svn.example.com/repo/nope' non-existent in revision 42"),
		}}
		info, err := newTestClient(f).Info(context.Background(), "https://svn.example.com/repo/nope")
		require.NoError(t, err)
		assert.False(t, info.Exists)
	})

	t.Run("connection failure", func(t *testing.T) {
		f := &fakeRunner{responses: map[string]func([]string) (*result, error){
			"info": failure("svn: E170013: Unable to connect to a repository at URL 'https://svn.example.com/repo'"),
		}}
		_, err := newTestClient(f).Info(context.Background(), "https://svn.example.com/repo")
		require.Error(t, err)
		assert.True(t, pperrors.IsConnectionError(err))
		assert.Contains(t, err.Error(), "E170013")
	})
}

func TestIsWorkingCopy(t *testing.T) {
	f := &fakeRunner{responses: map[string]func([]string) (*result, error){"info": stdout(rootInfoDoc)}}
	ok, err := newTestClient(f).IsWorkingCopy(context.Background(), "/wc")
	require.NoError(t, err)
	assert.True(t, ok)

	f = &fakeRunner{responses: map[string]func([]string) (*result, error){
		"info": failure("svn: E155007: '/tmp/plain' is not a working copy"),
	}}
	ok, err = newTestClient(f).IsWorkingCopy(context.Background(), "/tmp/plain")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteCommandArguments(t *testing.T) {
	ctx := context.Background()
	f := &fakeRunner{}
	c := newTestClient(f)

	require.NoError(t, c.Checkout(ctx, "https://svn.example.com/repo", "/wc", ""))
	require.NoError(t, c.Add(ctx, "/wc/d"))
	require.NoError(t, c.Delete(ctx, "/wc/old.txt", true))
	require.NoError(t, c.Delete(ctx, "/wc/old2.txt", false))
	require.NoError(t, c.Resolve(ctx, "/wc/a.txt", interfaces.AcceptMineFull))
	require.NoError(t, c.Commit(ctx, "/wc", "File /wc/old.txt deleted"))

	assert.Equal(t, [][]string{
		{"checkout", "--force", "--depth", "infinity", "https://svn.example.com/repo", "/wc"},
		{"add", "--parents", "/wc/d"},
		{"delete", "--force", "/wc/old.txt"},
		{"delete", "/wc/old2.txt"},
		{"resolve", "--accept", "mine-full", "--depth", "infinity", "/wc/a.txt"},
		{"commit", "-m", "File /wc/old.txt deleted", "/wc"},
	}, func() [][]string {
		var out [][]string
		for _, c := range f.calls {
			out = append(out, c.args)
		}
		return out
	}())

	err := c.Resolve(ctx, "/wc/a.txt", interfaces.Accept("base"))
	assert.True(t, pperrors.IsValidationError(err))
}

func TestCommandError(t *testing.T) {
	err := &commandError{Subcommand: "commit", Stderr: "svn: E155011: File '/wc/a.txt' is out of date", ExitCode: 1}
	assert.Equal(t, "svn commit: svn: E155011: File '/wc/a.txt' is out of date", err.Error())
	assert.True(t, hasCode(err, "E155011"))
	assert.False(t, hasCode(err, "E155007"))
	assert.False(t, hasCode(errors.New("E155011: plain"), "E155011"))

	wrapped := pperrors.NewSyncError("push", "/wc", err)
	assert.True(t, hasCode(wrapped, "E155011"))

	assert.Equal(t, "svn info: exit code 2", (&commandError{Subcommand: "info", ExitCode: 2}).Error())
}
