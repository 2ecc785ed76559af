// Package elevate provides privileged file writes and removals for the
// writer and backup retention.
package elevate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	osexec "os/exec"
	"strings"

	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/writer"
)

// ErrEmptyPath is returned when Write or Remove is called without a target.
var ErrEmptyPath = errors.New("empty target path")

// replaceScript copies the target's mode into a sibling temp file, fills it
// from stdin and renames it over the target. $1 is the target path.
const replaceScript = `t="$1.hostkeep.tmp"; ` +
	`if [ -e "$1" ]; then cp -p "$1" "$t" || exit 1; fi; ` +
	`cat > "$t" && mv -f "$t" "$1"`

// removeScript deletes $1. A missing file is not an error.
const removeScript = `rm -f -- "$1"`

// DefaultCommand is the privilege prefix used when none is configured.
var DefaultCommand = []string{"sudo"}

// CommandError reports a failed privileged command.
type CommandError struct {
	Op     string
	Path   string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("elevated %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("elevated %s %s: %v: %s", e.Op, e.Path, e.Err, e.Stderr)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// SudoExecutor writes files through a privilege-raising command prefix.
// The content is streamed on stdin and never appears on a command line.
type SudoExecutor struct {
	command []string
	shell   string
	logger  *logging.Logger

	// run executes the prepared command; replaced in tests.
	run func(cmd *osexec.Cmd) error
}

// Option configures a SudoExecutor.
type Option func(*SudoExecutor)

// WithCommand sets the privilege prefix, such as ["sudo", "-n"] or
// ["doas"]. An empty prefix runs the shell directly.
func WithCommand(command ...string) Option {
	return func(e *SudoExecutor) {
		e.command = command
	}
}

// WithShell sets the shell that runs the replace script.
func WithShell(shell string) Option {
	return func(e *SudoExecutor) {
		e.shell = shell
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *SudoExecutor) {
		e.logger = l
	}
}

// NewSudoExecutor creates a SudoExecutor.
func NewSudoExecutor(opts ...Option) *SudoExecutor {
	e := &SudoExecutor{
		command: DefaultCommand,
		shell:   "/bin/sh",
		logger:  logging.Nop(),
		run:     func(cmd *osexec.Cmd) error { return cmd.Run() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("elevate")
	return e
}

// Write implements writer.PrivilegedExecutor.
func (e *SudoExecutor) Write(ctx context.Context, path string, content []byte) error {
	return e.exec(ctx, "write", replaceScript, path, bytes.NewReader(content))
}

// Remove deletes path with raised privileges. Backups written through
// Write live where the unprivileged user cannot delete them.
func (e *SudoExecutor) Remove(ctx context.Context, path string) error {
	return e.exec(ctx, "remove", removeScript, path, nil)
}

func (e *SudoExecutor) exec(ctx context.Context, op, script, path string, stdin io.Reader) error {
	if path == "" {
		return ErrEmptyPath
	}

	argv := e.argv(script, path)
	cmd := osexec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("running %s", strings.Join(argv[:len(argv)-1], " "))
	if err := e.run(cmd); err != nil {
		return &CommandError{
			Op:     op,
			Path:   path,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return nil
}

// argv builds the full command line running script against path.
func (e *SudoExecutor) argv(script, path string) []string {
	argv := make([]string, 0, len(e.command)+5)
	argv = append(argv, e.command...)
	return append(argv, e.shell, "-c", script, "sh", path)
}

var _ writer.PrivilegedExecutor = (*SudoExecutor)(nil)
