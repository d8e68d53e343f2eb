// Package gitutil queries the local git repository for the tag and diff
// state that drives change detection.
package gitutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/chartship/internal/runner"
)

// ErrNoTag reports that no tag is reachable from the current history.
// Callers treat this as an expected first-release condition, not a failure.
var ErrNoTag = errors.New("no tag found")

// Client wraps the git CLI behind the queries chartship needs.
type Client struct {
	runner runner.Runner
}

// NewClient creates a Client that executes git through r.
func NewClient(r runner.Runner) *Client {
	return &Client{runner: r}
}

// Runner exposes the underlying runner so collaborators sharing the same
// working directory (e.g. the cr wrapper) can reuse it.
func (c *Client) Runner() runner.Runner {
	return c.runner
}

// RefreshTags fetches tag metadata from the remote. Stale tags silently
// produce wrong change sets, so callers must treat a failure as fatal.
func (c *Client) RefreshTags(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "git", "fetch", "--tags", "--quiet"); err != nil {
		return fmt.Errorf("refreshing tags: %w", err)
	}

	return nil
}

// LatestTag returns the most recent tag reachable from HEAD in abbreviated
// form. Only the describe failure for an untagged history maps to ErrNoTag;
// timeouts, cancellation, and other git failures propagate as errors so the
// caller never mistakes a transient failure for a tagless repository.
func (c *Client) LatestTag(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "git", "describe", "--tags", "--abbrev=0")
	if err != nil {
		if isNoTag(err) {
			return "", fmt.Errorf("%w: %s", ErrNoTag, err)
		}

		return "", fmt.Errorf("describing latest tag: %w", err)
	}

	return out, nil
}

// isNoTag reports whether a git describe failure means no tag is reachable,
// as opposed to a timeout or an unrelated git error. git prints
// "fatal: No names found, cannot describe anything." for an untagged
// history and "fatal: No tags can describe '<sha>'." when tags exist but
// none is reachable.
func isNoTag(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "no names found") ||
		strings.Contains(msg, "no tags can describe") ||
		strings.Contains(msg, "cannot describe")
}

// RootCommit returns the root commit of the first-parent chain from HEAD.
func (c *Client) RootCommit(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "git", "rev-list", "--max-parents=0", "--first-parent", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving root commit: %w", err)
	}

	// First-parent traversal yields a single root; take the first line.
	root, _, _ := strings.Cut(out, "\n")
	if root == "" {
		return "", fmt.Errorf("resolving root commit: empty rev-list output")
	}

	return root, nil
}

// TagExists reports whether a tag with exactly the given name exists. The
// ref is verified literally; `git tag --list` would treat the name as an
// fnmatch pattern, so glob characters in a chart name could match other
// tags.
func (c *Client) TagExists(ctx context.Context, name string) (bool, error) {
	_, err := c.runner.Run(ctx, "git", "show-ref", "--verify", "refs/tags/"+name)
	if err == nil {
		return true, nil
	}

	if isMissingRef(err) {
		return false, nil
	}

	return false, fmt.Errorf("checking tag %q: %w", name, err)
}

// isMissingRef matches the show-ref failure for a ref that does not exist.
func isMissingRef(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "not a valid ref")
}

// DiffPaths returns the paths under root that differ between marker and the
// working tree, with rename detection enabled.
func (c *Client) DiffPaths(ctx context.Context, marker, root string) ([]string, error) {
	out, err := c.runner.Run(ctx, "git", "diff", "--find-renames", "--name-only", marker, "--", root)
	if err != nil {
		return nil, fmt.Errorf("diffing against %q: %w", marker, err)
	}

	if out == "" {
		return nil, nil
	}

	var paths []string

	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}

	return paths, nil
}

// HeadCommit returns the commit SHA of HEAD.
func (c *Client) HeadCommit(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}

	return out, nil
}

// TopLevel returns the absolute path of the repository root.
func (c *Client) TopLevel(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("resolving repository root: %w", err)
	}

	return out, nil
}
