// Package chart discovers packageable Helm charts under a charts root
// directory and reads their descriptors.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"helm.sh/helm/v3/pkg/chartutil"
)

// DescriptorFile is the file that marks a directory as a Helm chart.
const DescriptorFile = "Chart.yaml"

// ErrNoDescriptor reports that a directory carries no Chart.yaml and is
// therefore not a chart.
var ErrNoDescriptor = errors.New("no chart descriptor")

// Chart identifies one packageable unit under the charts root.
type Chart struct {
	// Name is the chart name from the descriptor.
	Name string
	// Version is the chart version from the descriptor.
	Version string
	// Dir is the chart directory, in whatever form the producer uses:
	// absolute when read from the filesystem, repository-relative when
	// derived from diff output.
	Dir string
}

// ReleaseTag returns the tag under which this chart version is (or would be)
// released: "{name}-{version}".
func (c Chart) ReleaseTag() string {
	return fmt.Sprintf("%s-%s", c.Name, c.Version)
}

// ReadDescriptor reads the Chart.yaml of a chart directory and returns the
// chart identified by it. A missing descriptor yields ErrNoDescriptor so
// callers can distinguish "not a chart" from a malformed one.
func ReadDescriptor(dir string) (Chart, error) {
	descriptor := filepath.Join(dir, DescriptorFile)

	if _, err := os.Stat(descriptor); err != nil {
		if os.IsNotExist(err) {
			return Chart{}, fmt.Errorf("%s: %w", descriptor, ErrNoDescriptor)
		}

		return Chart{}, fmt.Errorf("reading descriptor %s: %w", descriptor, err)
	}

	meta, err := chartutil.LoadChartfile(descriptor)
	if err != nil {
		return Chart{}, fmt.Errorf("parsing descriptor %s: %w", descriptor, err)
	}

	if meta.Name == "" || meta.Version == "" {
		return Chart{}, fmt.Errorf("descriptor %s: missing name or version", descriptor)
	}

	return Chart{Name: meta.Name, Version: meta.Version, Dir: dir}, nil
}
