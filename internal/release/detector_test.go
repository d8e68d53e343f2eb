package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chartship/internal/chart"
	"github.com/hupe1980/chartship/internal/gitutil"
)

// fakeVCS implements VCS with canned state.
type fakeVCS struct {
	refreshErr   error
	latestTag    string
	latestTagErr error
	rootCommit   string
	tags         map[string]bool
	diffPaths    []string
	diffErr      error

	refreshCalls int
}

func (f *fakeVCS) RefreshTags(context.Context) error {
	f.refreshCalls++

	return f.refreshErr
}

func (f *fakeVCS) LatestTag(context.Context) (string, error) {
	if f.latestTagErr != nil {
		return "", f.latestTagErr
	}

	return f.latestTag, nil
}

func (f *fakeVCS) RootCommit(context.Context) (string, error) {
	return f.rootCommit, nil
}

func (f *fakeVCS) TagExists(_ context.Context, name string) (bool, error) {
	return f.tags[name], nil
}

func (f *fakeVCS) DiffPaths(context.Context, string, string) ([]string, error) {
	return f.diffPaths, f.diffErr
}

// fakeLister returns a fixed chart list.
type fakeLister struct {
	charts []chart.Chart
	err    error
}

func (f *fakeLister) List() ([]chart.Chart, error) {
	return f.charts, f.err
}

// ---------------------------------------------------------------------------
// ResolveMarker
// ---------------------------------------------------------------------------

func TestResolveMarker_LatestTag(t *testing.T) {
	vcs := &fakeVCS{latestTag: "foo-1.0.0"}
	d := NewDetector(vcs, &fakeLister{}, PolicyTag, nil)

	marker, err := d.ResolveMarker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "foo-1.0.0", marker)
	assert.Equal(t, 1, vcs.refreshCalls, "tags must be refreshed before lookup")
}

func TestResolveMarker_GenesisFallback(t *testing.T) {
	vcs := &fakeVCS{
		latestTagErr: gitutil.ErrNoTag,
		rootCommit:   "abc123",
	}
	d := NewDetector(vcs, &fakeLister{}, PolicyTag, nil)

	marker, err := d.ResolveMarker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", marker)

	// Unchanged history keeps resolving to the same marker.
	again, err := d.ResolveMarker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, marker, again)
}

func TestResolveMarker_RefreshFailureIsFatal(t *testing.T) {
	vcs := &fakeVCS{refreshErr: errors.New("remote unreachable")}
	d := NewDetector(vcs, &fakeLister{}, PolicyTag, nil)

	_, err := d.ResolveMarker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote unreachable")
}

// scriptedRunner feeds canned git results to a real gitutil.Client, keyed
// by the joined argv.
type scriptedRunner struct {
	outs map[string]string
	errs map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	if err := r.errs[key]; err != nil {
		return "", err
	}

	return r.outs[key], nil
}

func TestResolveMarker_DescribeTimeoutIsNotGenesis(t *testing.T) {
	// A timed-out describe in a tagged repository must surface as an error,
	// never as the root-commit fallback: diffing against the root commit
	// would re-release every chart.
	git := gitutil.NewClient(&scriptedRunner{
		errs: map[string]error{
			"git describe --tags --abbrev=0": fmt.Errorf("git describe --tags --abbrev=0: %w", context.DeadlineExceeded),
		},
		outs: map[string]string{
			"git rev-list --max-parents=0 --first-parent HEAD": "deadbeefcafe",
		},
	})
	d := NewDetector(git, &fakeLister{}, PolicyTag, nil)

	_, err := d.ResolveMarker(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, gitutil.ErrNoTag)
}

func TestResolveMarker_UnexpectedTagErrorPropagates(t *testing.T) {
	vcs := &fakeVCS{latestTagErr: errors.New("git exploded")}
	d := NewDetector(vcs, &fakeLister{}, PolicyTag, nil)

	_, err := d.ResolveMarker(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, gitutil.ErrNoTag)
}

// ---------------------------------------------------------------------------
// Detect — tag policy
// ---------------------------------------------------------------------------

func TestDetect_TagPolicy_SkipsReleasedVersions(t *testing.T) {
	vcs := &fakeVCS{tags: map[string]bool{"foo-1.0.0": true}}
	lister := &fakeLister{charts: []chart.Chart{
		{Name: "foo", Version: "1.0.0", Dir: "charts/foo"},
		{Name: "bar", Version: "2.0.0", Dir: "charts/bar"},
	}}
	d := NewDetector(vcs, lister, PolicyTag, nil)

	changed, err := d.Detect(context.Background(), "charts", "foo-1.0.0")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "bar", changed[0].Name)
	assert.Equal(t, "2.0.0", changed[0].Version)
}

func TestDetect_TagPolicy_EmptyChartsRoot(t *testing.T) {
	d := NewDetector(&fakeVCS{}, &fakeLister{}, PolicyTag, nil)

	changed, err := d.Detect(context.Background(), "charts", "v1")
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestDetect_TagPolicy_DeduplicatesListing(t *testing.T) {
	// A misbehaving lister repeating entries must not yield duplicates.
	lister := &fakeLister{charts: []chart.Chart{
		{Name: "foo", Version: "1.0.0"},
		{Name: "foo", Version: "1.0.0"},
	}}
	d := NewDetector(&fakeVCS{tags: map[string]bool{}}, lister, PolicyTag, nil)

	changed, err := d.Detect(context.Background(), "charts", "v1")
	require.NoError(t, err)
	assert.Len(t, changed, 1)
}

func TestDetect_TagPolicy_PreservesListingOrder(t *testing.T) {
	lister := &fakeLister{charts: []chart.Chart{
		{Name: "alpha", Version: "0.1.0"},
		{Name: "beta", Version: "0.2.0"},
		{Name: "gamma", Version: "0.3.0"},
	}}
	d := NewDetector(&fakeVCS{tags: map[string]bool{"beta-0.2.0": true}}, lister, PolicyTag, nil)

	changed, err := d.Detect(context.Background(), "charts", "v1")
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, "alpha", changed[0].Name)
	assert.Equal(t, "gamma", changed[1].Name)
}

func TestDetect_TagPolicy_ListerFailureIsFatal(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	d := NewDetector(&fakeVCS{}, lister, PolicyTag, nil)

	_, err := d.Detect(context.Background(), "charts", "v1")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Detect — diff policy
// ---------------------------------------------------------------------------

func TestDetect_DiffPolicy(t *testing.T) {
	vcs := &fakeVCS{diffPaths: []string{
		"charts/foo/Chart.yaml",
		"charts/foo/values.yaml",
		"charts/bar/templates/cm.yaml",
	}}
	d := NewDetector(vcs, &fakeLister{}, PolicyDiff, nil)

	changed, err := d.Detect(context.Background(), "charts", "v1")
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, "foo", changed[0].Name)
	assert.Equal(t, "bar", changed[1].Name)
}

func TestDetect_DiffPolicy_IgnoresFilesDirectlyUnderRoot(t *testing.T) {
	vcs := &fakeVCS{diffPaths: []string{"charts/README.md"}}
	d := NewDetector(vcs, &fakeLister{}, PolicyDiff, nil)

	changed, err := d.Detect(context.Background(), "charts", "v1")
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestDetect_DiffPolicy_DiffErrorIsFatal(t *testing.T) {
	vcs := &fakeVCS{diffErr: errors.New("bad revision")}
	d := NewDetector(vcs, &fakeLister{}, PolicyDiff, nil)

	_, err := d.Detect(context.Background(), "charts", "v1")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// chartName
// ---------------------------------------------------------------------------

func TestChartName(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		changed string
		want    string
		ok      bool
	}{
		{"simple", "charts", "charts/foo/Chart.yaml", "foo", true},
		{"nested", "charts", "charts/foo/templates/deep/cm.yaml", "foo", true},
		{"trailing separator on root", "charts/", "charts/foo/Chart.yaml", "foo", true},
		{"multi-level root", "stable/charts", "stable/charts/foo/Chart.yaml", "foo", true},
		{"dot root", ".", "foo/Chart.yaml", "foo", true},
		{"file under root", "charts", "charts/README.md", "", false},
		{"outside root", "charts", "docs/guide.md", "", false},
		{"root prefix but different dir", "charts", "charts-old/foo/Chart.yaml", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chartName(tt.root, tt.changed)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("tag")
	require.NoError(t, err)
	assert.Equal(t, PolicyTag, p)

	p, err = ParsePolicy("diff")
	require.NoError(t, err)
	assert.Equal(t, PolicyDiff, p)

	_, err = ParsePolicy("guess")
	require.Error(t, err)
}
