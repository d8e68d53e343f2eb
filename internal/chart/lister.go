package chart

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
)

// Lister enumerates the valid charts below a charts root directory.
//
// Only immediate subdirectories of the root are candidates. Candidates
// without a Chart.yaml are skipped with a warning, since non-chart
// directories (docs, tooling) commonly live next to charts.
type Lister struct {
	root   string
	logger *slog.Logger
}

// NewLister creates a Lister for the given charts root.
func NewLister(root string, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}

	return &Lister{root: root, logger: logger}
}

// List returns the valid charts under the root in directory listing order.
// An unreadable root is a configuration error and fails the run.
func (l *Lister) List() ([]Chart, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("reading charts directory %q: %w", l.root, err)
	}

	var charts []Chart

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(l.root, entry.Name())

		c, err := ReadDescriptor(dir)
		if err != nil {
			if errors.Is(err, ErrNoDescriptor) {
				l.logger.Warn("not a Helm chart directory, skipping",
					slog.String("dir", dir),
					slog.String("missing", DescriptorFile),
				)
			} else {
				l.logger.Warn("unusable chart descriptor, skipping",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
			}

			continue
		}

		// Charts with a non-semver version still list (packaging decides
		// their fate), but the oddity is worth surfacing.
		if _, verr := semver.NewVersion(c.Version); verr != nil {
			l.logger.Warn("chart version is not valid semver",
				slog.String("chart", c.Name),
				slog.String("version", c.Version),
			)
		}

		charts = append(charts, c)
	}

	return charts, nil
}
