// Package svn implements interfaces.VCSClient on top of the svn command-line client
package svn

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// svn error and warning codes the adapter reacts to
const (
	codeNotWorkingCopy = "E155007"
	codeNodeNotFound   = "W155010"
	codeURLNotFound    = "W170000"
	codeTargetsMissing = "E200009"
	codeCantConnect    = "E170013"
	codeAuthFailed     = "E215004"
	codeAuthRejected   = "E170001"
)

// trustedFailures are accepted for every server certificate when trust is enabled
const trustedFailures = "unknown-ca,cn-mismatch,expired,not-yet-valid,other"

// Options configures the adapter
type Options struct {
	Binary          string
	Username        string
	Password        string
	TrustServerCert bool
}

// OptionsFromConfig picks the adapter settings out of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Binary:          cfg.SVNBinary,
		Username:        cfg.Username,
		Password:        cfg.Password,
		TrustServerCert: cfg.TrustServerCert,
	}
}

// Client drives the svn binary. Every call runs one or more child processes
// that are killed when ctx is done.
type Client struct {
	run    runner
	logger *zap.Logger
}

var _ interfaces.VCSClient = (*Client)(nil)

// NewClient creates an adapter authenticating with opts
func NewClient(opts Options) *Client {
	logger := pplogger.Named("svn")

	binary := opts.Binary
	if binary == "" {
		binary = "svn"
	}

	global := []string{"--non-interactive"}
	if opts.Username != "" {
		global = append(global, "--username", opts.Username)
	}
	// the password goes through stdin so it never shows up in the process list
	if opts.Password != "" {
		global = append(global, "--password-from-stdin")
	}
	if opts.TrustServerCert {
		global = append(global, "--trust-server-cert-failures="+trustedFailures)
	}

	return &Client{
		run:    &cliRunner{binary: binary, global: global, password: opts.Password, logger: logger},
		logger: logger,
	}
}

// exec runs one subcommand and classifies its failure
func (c *Client) exec(ctx context.Context, args ...string) (*result, error) {
	res, err := c.run.Run(ctx, args...)
	if err == nil {
		return res, nil
	}
	if hasCode(err, codeCantConnect, codeAuthFailed, codeAuthRejected) {
		return res, pperrors.NewConnectionError("cannot reach repository", err)
	}
	return res, err
}

// Checkout creates a working copy. Unversioned files already present in
// localPath are kept and show up as local modifications.
func (c *Client) Checkout(ctx context.Context, remoteURL, localPath string, depth interfaces.Depth) error {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	if depth == "" {
		depth = interfaces.DepthInfinity
	}
	_, err = c.exec(ctx, "checkout", "--force", "--depth", string(depth), remoteURL, abs)
	return err
}

// Update brings the working copy to head, postponing every conflict, then
// reports each conflicted node to sink
func (c *Client) Update(ctx context.Context, localPath string, sink interfaces.ConflictSink) error {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	if _, err := c.exec(ctx, "update", "--accept", "postpone", abs); err != nil {
		return err
	}

	status, err := c.Status(ctx, abs)
	if err != nil {
		return err
	}

	var conflicted []string
	for _, s := range status {
		if s.ContentStatus == interfaces.StatusConflicted || s.TreeConflict {
			conflicted = append(conflicted, s.Path)
		}
	}
	if len(conflicted) == 0 || sink == nil {
		return nil
	}

	res, err := c.exec(ctx, append([]string{"info", "--xml"}, conflicted...)...)
	if err != nil {
		return err
	}
	entries, err := parseInfo(res.Stdout)
	if err != nil {
		return err
	}

	c.logger.Debug("Update left conflicts",
		zap.String("path", abs),
		zap.Int("conflicts", len(entries)))

	for _, entry := range entries {
		kind, ok := entry.conflictKind()
		if !ok {
			continue
		}
		rel, err := filepath.Rel(abs, entry.Path)
		if err != nil {
			rel = entry.Path
		}
		ev := interfaces.ConflictEvent{
			Path:   rel,
			Type:   kind.Type,
			Action: kind.Action,
			Reason: kind.Reason,
		}
		if kind.Type != models.ConflictTypeTree {
			ev.MergedFile = entry.Path
		}
		sink(ev)
	}
	return nil
}

// Commit sends every local change below localPath
func (c *Client) Commit(ctx context.Context, localPath, message string) error {
	_, err := c.exec(ctx, "commit", "-m", message, localPath)
	return err
}

// Add schedules path, its unversioned parents and everything below it
func (c *Client) Add(ctx context.Context, path string) error {
	_, err := c.exec(ctx, "add", "--parents", path)
	return err
}

// Delete schedules path for deletion and removes it from disk
func (c *Client) Delete(ctx context.Context, path string, force bool) error {
	args := []string{"delete"}
	if force {
		args = append(args, "--force")
	}
	_, err := c.exec(ctx, append(args, path)...)
	return err
}

// Resolve clears every conflict at or below path
func (c *Client) Resolve(ctx context.Context, path string, accept interfaces.Accept) error {
	switch accept {
	case interfaces.AcceptMineFull, interfaces.AcceptTheirsFull, interfaces.AcceptWorking:
	default:
		return pperrors.NewValidationError(fmt.Sprintf("unsupported accept mode %q", accept), nil)
	}
	_, err := c.exec(ctx, "resolve", "--accept", string(accept), "--depth", "infinity", path)
	return err
}

// Status lists every entry below path that is not unmodified
func (c *Client) Status(ctx context.Context, path string) ([]interfaces.StatusEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	res, err := c.exec(ctx, "status", "--xml", abs)
	if err != nil {
		return nil, err
	}

	entries, err := parseStatus(res.Stdout)
	if err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		if e.ContentStatus != interfaces.StatusNormal || e.TreeConflict {
			out = append(out, e)
		}
	}
	return out, nil
}

// Info describes a working-copy path or a repository URL. Targets svn does
// not know about yield Exists == false.
func (c *Client) Info(ctx context.Context, target string) (*interfaces.Info, error) {
	res, err := c.exec(ctx, "info", "--xml", target)
	if err != nil {
		if hasCode(err, codeNodeNotFound, codeURLNotFound, codeNotWorkingCopy, codeTargetsMissing) {
			return &interfaces.Info{}, nil
		}
		return nil, err
	}

	entries, err := parseInfo(res.Stdout)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &interfaces.Info{}, nil
	}

	e := entries[0]
	return &interfaces.Info{
		Exists:   true,
		Revision: e.Revision,
		URL:      e.URL,
		Root:     e.Repository.Root,
		IsDir:    e.Kind == "dir",
	}, nil
}

// IsWorkingCopy reports whether path is inside a working copy
func (c *Client) IsWorkingCopy(ctx context.Context, path string) (bool, error) {
	url, err := c.URL(ctx, path)
	if err != nil {
		return false, err
	}
	return url != "", nil
}

// URL returns the repository URL path is checked out from, or "" when path
// is not inside a working copy
func (c *Client) URL(ctx context.Context, path string) (string, error) {
	res, err := c.exec(ctx, "info", "--xml", path)
	if err != nil {
		if hasCode(err, codeNotWorkingCopy, codeNodeNotFound, codeTargetsMissing) {
			return "", nil
		}
		return "", err
	}

	entries, err := parseInfo(res.Stdout)
	if err != nil || len(entries) == 0 {
		return "", err
	}
	return strings.TrimSpace(entries[0].URL), nil
}
