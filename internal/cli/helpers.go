package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/chartship/internal/chart"
	"github.com/hupe1980/chartship/internal/gitutil"
	"github.com/hupe1980/chartship/internal/logging"
	"github.com/hupe1980/chartship/internal/release"
	"github.com/hupe1980/chartship/internal/runner"
)

// detection bundles the collaborators a change-detection run needs.
type detection struct {
	git      *gitutil.Client
	detector *release.Detector
	// chartsRoot is the absolute charts root, used for filesystem access.
	chartsRoot string
	// chartsRel is the charts root relative to the repository root, the
	// form git reports diff paths in.
	chartsRel string
	repoRoot  string
}

// absDir resolves a chart directory against the repository root. Tag-derived
// charts already carry absolute directories; diff-derived ones are
// repository-relative.
func (d *detection) absDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}

	return filepath.Join(d.repoRoot, dir)
}

// newDetection resolves the repository root and wires the git client,
// lister, and detector together. chartsDir is interpreted relative to the
// repository root, matching where release pipelines check out.
func newDetection(ctx context.Context, chartsDir, policyName string, gitTimeout time.Duration) (*detection, error) {
	logger := logging.FromContext(ctx)

	policy, err := release.ParsePolicy(policyName)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	// Resolve the repository root first, then run every follow-up command
	// from there so relative chart paths behave like the pipeline expects.
	bootstrap := gitutil.NewClient(runner.NewExecRunner("", gitTimeout))

	repoRoot, err := bootstrap.TopLevel(ctx)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("not inside a git repository: %w", err)}
	}

	chartsRoot := chartsDir
	if !filepath.IsAbs(chartsRoot) {
		chartsRoot = filepath.Join(repoRoot, chartsDir)
	}

	chartsRel, err := filepath.Rel(repoRoot, chartsRoot)
	if err != nil || strings.HasPrefix(chartsRel, "..") {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("charts directory %q is outside the repository %q", chartsRoot, repoRoot)}
	}

	git := gitutil.NewClient(runner.NewExecRunner(repoRoot, gitTimeout))
	lister := chart.NewLister(chartsRoot, logger)

	return &detection{
		git:        git,
		detector:   release.NewDetector(git, lister, policy, logger),
		chartsRoot: chartsRoot,
		chartsRel:  chartsRel,
		repoRoot:   repoRoot,
	}, nil
}

// resolveCacheDir picks the tool cache root: an explicit flag value, the
// CI-provided RUNNER_TOOL_CACHE, or the user cache directory.
func resolveCacheDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if dir := os.Getenv("RUNNER_TOOL_CACHE"); dir != "" {
		return dir, nil
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving tool cache directory: %w", err)
	}

	cacheDir := filepath.Join(dir, "chartship")
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return "", fmt.Errorf("creating tool cache directory: %w", err)
	}

	return cacheDir, nil
}
