package refindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"asyncref/internal/config"
)

// ErrNotConfigured is returned when no recompute command is configured.
var ErrNotConfigured = errors.New("recompute command not configured")

// Placeholders substituted in configured command arguments.
const (
	PlaceholderTable     = "{table}"
	PlaceholderUID       = "{uid}"
	PlaceholderWorkspace = "{workspace}"
	PlaceholderCheck     = "{check}"
	PlaceholderVerbose   = "{verbose}"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) ([]byte, error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	return cmd.Output()
}

// CommandError reports a recompute command that exited unsuccessfully.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed (exit status %d)", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Code returns the command's exit code.
func (e *CommandError) Code() int { return e.ExitCode }

// Option configures a CommandIndexer.
type Option func(*CommandIndexer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *CommandIndexer) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CommandIndexer recomputes rows by running an external command.
type CommandIndexer struct {
	command     []string
	fullCommand []string
	workDir     string
	exec        Executor
}

// NewCommandIndexer constructs an indexer from the [recompute] section.
func NewCommandIndexer(cfg config.Recompute, opts ...Option) *CommandIndexer {
	c := &CommandIndexer{
		command:     append([]string(nil), cfg.Command...),
		fullCommand: append([]string(nil), cfg.FullCommand...),
		workDir:     cfg.WorkDir,
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommandFactory returns a Factory producing CommandIndexers for cfg.
func CommandFactory(cfg *config.Config, opts ...Option) Factory {
	recompute := cfg.Recompute
	return func() Indexer {
		return NewCommandIndexer(recompute, opts...)
	}
}

// UpdateRecord runs the per-record command.
func (c *CommandIndexer) UpdateRecord(ctx context.Context, req Request) (Result, error) {
	if len(c.command) == 0 {
		return Result{}, ErrNotConfigured
	}
	values := map[string]string{
		PlaceholderTable:     req.Table,
		PlaceholderUID:       strconv.FormatInt(req.UID, 10),
		PlaceholderWorkspace: strconv.FormatInt(req.Workspace, 10),
	}
	return c.run(ctx, expandArgs(c.command, values, req.CheckOnly, req.Verbose))
}

// UpdateAll runs the full recompute command.
func (c *CommandIndexer) UpdateAll(ctx context.Context, req FullRequest) (Result, error) {
	if len(c.fullCommand) == 0 {
		return Result{}, fmt.Errorf("full recompute: %w", ErrNotConfigured)
	}
	return c.run(ctx, expandArgs(c.fullCommand, nil, req.CheckOnly, req.Verbose))
}

func (c *CommandIndexer) run(ctx context.Context, argv []string) (Result, error) {
	binary, args := argv[0], argv[1:]
	output, err := c.exec.Run(ctx, c.workDir, binary, args)
	if err != nil {
		type exitCoder interface{ ExitCode() int }
		var exitErr exitCoder
		if errors.As(err, &exitErr) {
			return Result{}, &CommandError{
				Command:  binary,
				ExitCode: exitErr.ExitCode(),
				Stderr:   commandStderr(err),
				Err:      err,
			}
		}
		return Result{}, fmt.Errorf("run %s: %w", binary, err)
	}
	return decodeResult(output)
}

func decodeResult(output []byte) (Result, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return Result{}, nil
	}
	var result Result
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return Result{}, fmt.Errorf("decode recompute output: %w", err)
	}
	return result, nil
}

// expandArgs substitutes placeholders. {check} and {verbose} expand to a flag
// when set and are dropped otherwise.
func expandArgs(template []string, values map[string]string, check, verbose bool) []string {
	out := make([]string, 0, len(template))
	for _, arg := range template {
		switch arg {
		case PlaceholderCheck:
			if check {
				out = append(out, "--check")
			}
			continue
		case PlaceholderVerbose:
			if verbose {
				out = append(out, "--verbose")
			}
			continue
		}
		for placeholder, value := range values {
			arg = strings.ReplaceAll(arg, placeholder, value)
		}
		out = append(out, arg)
	}
	return out
}

func commandStderr(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return ""
}
