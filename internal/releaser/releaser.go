// Package releaser drives the external cr (chart-releaser) binary:
// packaging changed charts, uploading release artifacts, and regenerating
// the repository index.
package releaser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hupe1980/chartship/internal/runner"
)

// Default working directories, matching the layout cr expects.
const (
	// DefaultPackagePath is where packaged chart archives are staged.
	DefaultPackagePath = ".cr-release-packages"
	// DefaultIndexPath is where the regenerated index is staged.
	DefaultIndexPath = ".cr-index"
)

// Options configures a Releaser. Bin is the resolved path of the cr binary;
// threading it explicitly keeps the process PATH untouched.
type Options struct {
	// Bin is the path to the cr binary.
	Bin string
	// Owner is the GitHub owner of the chart repository.
	Owner string
	// Repo is the GitHub repository name.
	Repo string
	// ConfigFile is an optional cr configuration file.
	ConfigFile string
	// PackagePath is the directory packaged charts are written to and
	// uploaded/indexed from. Empty means DefaultPackagePath.
	PackagePath string
	// IndexPath is the directory the regenerated index is staged in.
	// Empty means DefaultIndexPath.
	IndexPath string
}

// Releaser invokes cr for packaging, uploading, and index updates.
type Releaser struct {
	opts   Options
	runner runner.Runner
	logger *slog.Logger
}

// New creates a Releaser that invokes cr through r.
func New(opts Options, r runner.Runner, logger *slog.Logger) *Releaser {
	if opts.PackagePath == "" {
		opts.PackagePath = DefaultPackagePath
	}

	if opts.IndexPath == "" {
		opts.IndexPath = DefaultIndexPath
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Releaser{opts: opts, runner: r, logger: logger}
}

// Package packages a single chart directory into the package path.
func (r *Releaser) Package(ctx context.Context, chartDir string) error {
	r.logger.Info("packaging chart", slog.String("dir", chartDir))

	args := []string{"package", chartDir, "--package-path", r.opts.PackagePath}
	args = r.withConfig(args)

	if _, err := r.runner.Run(ctx, r.opts.Bin, args...); err != nil {
		return fmt.Errorf("packaging chart %q: %w", chartDir, err)
	}

	return nil
}

// Upload uploads the staged packages as release artifacts for commit.
func (r *Releaser) Upload(ctx context.Context, commit string) error {
	r.logger.Info("releasing charts",
		slog.String("owner", r.opts.Owner),
		slog.String("repo", r.opts.Repo),
	)

	args := []string{
		"upload", "-o", r.opts.Owner, "-r", r.opts.Repo, "-c", commit,
		"--package-path", r.opts.PackagePath,
	}
	args = r.withConfig(args)

	if _, err := r.runner.Run(ctx, r.opts.Bin, args...); err != nil {
		return fmt.Errorf("uploading charts: %w", err)
	}

	return nil
}

// UpdateIndex regenerates the chart repository index and pushes it.
func (r *Releaser) UpdateIndex(ctx context.Context) error {
	r.logger.Info("updating chart repository index",
		slog.String("owner", r.opts.Owner),
		slog.String("repo", r.opts.Repo),
	)

	args := []string{
		"index", "-o", r.opts.Owner, "-r", r.opts.Repo, "--push",
		"--package-path", r.opts.PackagePath,
		"--index-path", r.opts.IndexPath,
	}
	args = r.withConfig(args)

	if _, err := r.runner.Run(ctx, r.opts.Bin, args...); err != nil {
		return fmt.Errorf("updating index: %w", err)
	}

	return nil
}

func (r *Releaser) withConfig(args []string) []string {
	if r.opts.ConfigFile != "" {
		return append(args, "--config", r.opts.ConfigFile)
	}

	return args
}
