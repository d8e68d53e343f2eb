package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chartship/internal/logging"
	"github.com/hupe1980/chartship/internal/releaser"
)

// defaultCrVersion is the chart-releaser version installed when none is
// requested.
const defaultCrVersion = "v1.8.1"

// crTokenEnv must hold the GitHub token cr uses for uploads.
const crTokenEnv = "CR_TOKEN"

type releaseOptions struct {
	chartsDir       string
	owner           string
	repo            string
	crConfig        string
	crVersion       string
	cacheDir        string
	packagePath     string
	indexPath       string
	policy          string
	gitTimeout      time.Duration
	skipPackaging   bool
	skipUpdateIndex bool
}

func newReleaseCommand() *cobra.Command {
	opts := &releaseOptions{}

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Package and release changed charts",
		Long: `Release every chart that changed since the last release.

The last released state is the most recent reachable tag, or the root
commit of an untagged repository. Changed charts are packaged with cr,
uploaded as release artifacts, and the chart repository index is
regenerated and pushed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelease(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.chartsDir, "charts-dir", "d", "charts", "charts root directory, relative to the repository root")
	f.StringVarP(&opts.owner, "owner", "o", "", "GitHub owner of the chart repository")
	f.StringVarP(&opts.repo, "repo", "r", "", "GitHub repository name")
	f.StringVar(&opts.crConfig, "cr-config", "", "cr configuration file")
	f.StringVarP(&opts.crVersion, "cr-version", "v", defaultCrVersion, "chart-releaser version to install")
	f.StringVarP(&opts.cacheDir, "install-dir", "n", "", "tool cache directory (default: $RUNNER_TOOL_CACHE or the user cache)")
	f.StringVar(&opts.packagePath, "package-path", releaser.DefaultPackagePath, "directory packaged charts are written to")
	f.StringVar(&opts.indexPath, "index-path", releaser.DefaultIndexPath, "directory the regenerated index is staged in")
	f.StringVar(&opts.policy, "policy", "tag", "change detection policy: tag or diff")
	f.DurationVar(&opts.gitTimeout, "git-timeout", 30*time.Second, "timeout per git invocation")
	f.BoolVarP(&opts.skipPackaging, "skip-packaging", "s", false, "skip packaging and go straight to upload and index")
	f.BoolVarP(&opts.skipUpdateIndex, "skip-update-index", "u", false, "skip regenerating the repository index")

	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func runRelease(ctx context.Context, opts *releaseOptions) error {
	logger := logging.FromContext(ctx)

	if os.Getenv(crTokenEnv) == "" {
		return &ExitError{Code: 2, Err: fmt.Errorf("environment variable %s must be set", crTokenEnv)}
	}

	cacheDir, err := resolveCacheDir(opts.cacheDir)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	det, err := newDetection(ctx, opts.chartsDir, opts.policy, opts.gitTimeout)
	if err != nil {
		return err
	}

	installer := &releaser.Installer{
		CacheDir: cacheDir,
		Version:  opts.crVersion,
		Logger:   logger,
	}

	if opts.skipPackaging {
		return uploadAndIndex(ctx, opts, det, installer)
	}

	logger.Info("looking up latest release marker")

	marker, err := det.detector.ResolveMarker(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	logger.Info("discovering changed charts", slog.String("since", marker))

	changed, err := det.detector.Detect(ctx, det.chartsRel, marker)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if len(changed) == 0 {
		logger.Info("nothing to do, no chart changes detected")

		return nil
	}

	bin, err := installer.Ensure(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	rel, err := newReleaser(opts, det, bin, logger)
	if err != nil {
		return err
	}

	packaged := 0

	for _, c := range changed {
		dir := det.absDir(c.Dir)

		// Under the diff policy the change set comes from historical diffs,
		// so a chart directory may have been deleted since.
		if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
			logger.Warn("chart no longer exists in repo, skipping",
				slog.String("chart", c.Name),
				slog.String("dir", dir),
			)

			continue
		}

		if err := rel.Package(ctx, dir); err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		packaged++
	}

	if packaged == 0 {
		logger.Info("nothing to do, all changed charts vanished from the working tree")

		return nil
	}

	return finishRelease(ctx, opts, det, rel)
}

// uploadAndIndex handles --skip-packaging: previously staged packages are
// uploaded and the index regenerated without change detection.
func uploadAndIndex(ctx context.Context, opts *releaseOptions, det *detection, installer *releaser.Installer) error {
	bin, err := installer.Ensure(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	rel, err := newReleaser(opts, det, bin, logging.FromContext(ctx))
	if err != nil {
		return err
	}

	return finishRelease(ctx, opts, det, rel)
}

// finishRelease uploads the staged packages and, unless skipped, updates
// the repository index.
func finishRelease(ctx context.Context, opts *releaseOptions, det *detection, rel *releaser.Releaser) error {
	head, err := det.git.HeadCommit(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if err := rel.Upload(ctx, head); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if opts.skipUpdateIndex {
		return nil
	}

	if err := os.MkdirAll(filepath.Join(det.repoRoot, opts.indexPath), 0o750); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("creating index directory: %w", err)}
	}

	if err := rel.UpdateIndex(ctx); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

// newReleaser stages the package directory and builds the cr wrapper. The
// resolved cr binary path is threaded explicitly; PATH is never touched.
func newReleaser(opts *releaseOptions, det *detection, bin string, logger *slog.Logger) (*releaser.Releaser, error) {
	if err := os.MkdirAll(filepath.Join(det.repoRoot, opts.packagePath), 0o750); err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("creating package directory: %w", err)}
	}

	if opts.owner == "" || opts.repo == "" {
		return nil, &ExitError{Code: 2, Err: errors.New("owner and repo must be set")}
	}

	return releaser.New(releaser.Options{
		Bin:         bin,
		Owner:       opts.owner,
		Repo:        opts.repo,
		ConfigFile:  opts.crConfig,
		PackagePath: opts.packagePath,
		IndexPath:   opts.indexPath,
	}, det.git.Runner(), logger), nil
}
