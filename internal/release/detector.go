package release

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/hupe1980/chartship/internal/chart"
	"github.com/hupe1980/chartship/internal/gitutil"
)

// VCS is the version-control surface the detector depends on. It is
// implemented by gitutil.Client and faked in tests.
type VCS interface {
	RefreshTags(ctx context.Context) error
	LatestTag(ctx context.Context) (string, error)
	RootCommit(ctx context.Context) (string, error)
	TagExists(ctx context.Context, name string) (bool, error)
	DiffPaths(ctx context.Context, marker, root string) ([]string, error)
}

// Lister enumerates the valid charts under the charts root.
type Lister interface {
	List() ([]chart.Chart, error)
}

// Detector computes the change set of charts that need a release.
type Detector struct {
	vcs    VCS
	lister Lister
	policy Policy
	logger *slog.Logger
}

// NewDetector creates a Detector using the given policy.
func NewDetector(vcs VCS, lister Lister, policy Policy, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{vcs: vcs, lister: lister, policy: policy, logger: logger}
}

// ResolveMarker resolves the single reference point for "last released
// state": the most recent reachable tag, or the first-parent root commit of
// a repository that has never been tagged. The tag refresh runs first; its
// failure is fatal because stale tag data silently yields wrong change sets.
func (d *Detector) ResolveMarker(ctx context.Context) (string, error) {
	if err := d.vcs.RefreshTags(ctx); err != nil {
		return "", err
	}

	tag, err := d.vcs.LatestTag(ctx)
	if err == nil {
		return tag, nil
	}

	if !errors.Is(err, gitutil.ErrNoTag) {
		return "", err
	}

	// No release yet: fall back to the repository genesis so the whole
	// chart tree counts as changed.
	d.logger.Info("no tag found, falling back to root commit")

	root, err := d.vcs.RootCommit(ctx)
	if err != nil {
		return "", err
	}

	return root, nil
}

// Detect returns the ordered, duplicate-free set of charts that need a
// release relative to marker. The order follows the directory listing
// (tag policy) or the first occurrence in the diff output (diff policy),
// keeping packaging deterministic for the same tree state. chartsRoot must
// be the charts directory relative to the repository root, the form git
// reports changed paths in; diff-derived charts carry directories in the
// same form.
func (d *Detector) Detect(ctx context.Context, chartsRoot, marker string) ([]chart.Chart, error) {
	switch d.policy {
	case PolicyDiff:
		return d.detectByDiff(ctx, chartsRoot, marker)
	default:
		return d.detectByTag(ctx)
	}
}

// detectByTag includes every chart whose computed release tag does not
// exist in the tag namespace yet.
func (d *Detector) detectByTag(ctx context.Context) ([]chart.Chart, error) {
	charts, err := d.lister.List()
	if err != nil {
		return nil, err
	}

	seen := sets.New[string]()

	var changed []chart.Chart

	for _, c := range charts {
		if seen.Has(c.Name) {
			continue
		}

		seen.Insert(c.Name)

		tag := c.ReleaseTag()

		exists, err := d.vcs.TagExists(ctx, tag)
		if err != nil {
			return nil, err
		}

		if exists {
			d.logger.Info("chart already released at this version, skipping",
				slog.String("chart", c.Name),
				slog.String("tag", tag),
			)

			continue
		}

		d.logger.Info("chart needs release",
			slog.String("chart", c.Name),
			slog.String("tag", tag),
		)

		changed = append(changed, c)
	}

	return changed, nil
}

// detectByDiff includes every chart directory with path-level changes
// between the marker and the working tree.
func (d *Detector) detectByDiff(ctx context.Context, chartsRoot, marker string) ([]chart.Chart, error) {
	paths, err := d.vcs.DiffPaths(ctx, marker, chartsRoot)
	if err != nil {
		return nil, err
	}

	seen := sets.New[string]()

	var changed []chart.Chart

	for _, p := range paths {
		name, ok := chartName(chartsRoot, p)
		if !ok || seen.Has(name) {
			continue
		}

		seen.Insert(name)

		d.logger.Info("chart has changes since last release",
			slog.String("chart", name),
			slog.String("marker", marker),
		)

		changed = append(changed, chart.Chart{
			Name: name,
			Dir:  filepath.Join(chartsRoot, name),
		})
	}

	return changed, nil
}

// chartName extracts the chart directory name from a changed path: the path
// component immediately following the charts root. A path equal to the root
// itself, or a file sitting directly under the root, yields no chart.
func chartName(chartsRoot, changed string) (string, bool) {
	root := path.Clean(filepath.ToSlash(chartsRoot))
	p := path.Clean(filepath.ToSlash(changed))

	if root != "." {
		if !strings.HasPrefix(p, root+"/") {
			return "", false
		}

		p = p[len(root)+1:]
	}

	name, rest, _ := strings.Cut(p, "/")
	if name == "" || name == "." || rest == "" {
		// No component below the candidate directory: a bare file under the
		// charts root, not a chart subtree.
		return "", false
	}

	return name, true
}
