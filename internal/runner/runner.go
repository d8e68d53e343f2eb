// Package runner abstracts external process execution behind a narrow
// interface so that git and cr interactions can be faked in tests.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external command and returns its trimmed stdout.
type Runner interface {
	// Run executes name with args and returns stdout with surrounding
	// whitespace removed. A non-zero exit status is returned as an error
	// that includes the command's stderr.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	// Dir is the working directory for every command. Empty means the
	// process working directory.
	Dir string
	// Timeout bounds each command. Zero means no timeout beyond the
	// caller's context.
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the given working directory and
// per-command timeout.
func NewExecRunner(dir string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Dir: dir, Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)

		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctxErr)
		}

		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}

		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}
