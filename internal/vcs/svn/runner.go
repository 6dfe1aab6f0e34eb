package svn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// result holds the captured output of one svn invocation
type result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// runner executes the svn binary
type runner interface {
	Run(ctx context.Context, args ...string) (*result, error)
}

// cliRunner runs svn as a child process bound to the caller's context
type cliRunner struct {
	binary   string
	global   []string
	password string
	logger   *zap.Logger
}

func (r *cliRunner) Run(ctx context.Context, args ...string) (*result, error) {
	full := append(append([]string(nil), args...), r.global...)
	cmd := exec.CommandContext(ctx, r.binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.password != "" {
		cmd.Stdin = strings.NewReader(r.password + "\n")
	}

	r.logger.Debug("Running svn", zap.Strings("args", args))
	err := cmd.Run()

	res := &result{
		Stdout: stdout.Bytes(),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("svn %s: %w", args[0], ctxErr)
	}
	return res, &commandError{Subcommand: args[0], Stderr: res.Stderr, ExitCode: res.ExitCode, Err: err}
}

// commandError is a failed svn invocation
type commandError struct {
	Subcommand string
	Stderr     string
	ExitCode   int
	Err        error
}

func (e *commandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("svn %s: exit code %d", e.Subcommand, e.ExitCode)
	}
	return fmt.Sprintf("svn %s: %s", e.Subcommand, e.Stderr)
}

func (e *commandError) Unwrap() error {
	return e.Err
}

// hasCode reports whether err is an svn failure carrying one of the given
// error or warning codes, such as E155007
func hasCode(err error, codes ...string) bool {
	var cerr *commandError
	if !errors.As(err, &cerr) {
		return false
	}
	for _, code := range codes {
		if strings.Contains(cerr.Stderr, code+":") {
			return true
		}
	}
	return false
}
