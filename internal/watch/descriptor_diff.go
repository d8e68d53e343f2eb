package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chartship/internal/chart"
)

// DescriptorChange describes how a Chart.yaml changed between two
// consecutive watch events.
type DescriptorChange struct {
	// Unified is the unified diff of the descriptor content.
	Unified string
	// OldVersion and NewVersion are the version fields before and after.
	// Either may be empty when the descriptor failed to parse.
	OldVersion string
	NewVersion string
}

// VersionBumped reports whether the descriptor's version field changed.
func (c DescriptorChange) VersionBumped() bool {
	return c.OldVersion != c.NewVersion
}

// DescriptorTracker keeps the last seen content of each Chart.yaml so that
// a change event can be turned into a readable diff.
type DescriptorTracker struct {
	mu        sync.Mutex
	snapshots map[string]string
}

// NewDescriptorTracker creates an empty tracker.
func NewDescriptorTracker() *DescriptorTracker {
	return &DescriptorTracker{snapshots: make(map[string]string)}
}

// Prime walks the charts root and snapshots every existing descriptor so
// the first edit after startup already produces a diff.
func (t *DescriptorTracker) Prime(chartsRoot string) {
	entries, err := os.ReadDir(chartsRoot)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		t.Snapshot(filepath.Join(chartsRoot, entry.Name(), chart.DescriptorFile))
	}
}

// Snapshot records the current content of the descriptor at path. Missing
// files clear the snapshot.
func (t *DescriptorTracker) Snapshot(path string) {
	data, err := os.ReadFile(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		delete(t.snapshots, path)

		return
	}

	t.snapshots[path] = string(data)
}

// Diff compares the descriptor at path against its last snapshot, updates
// the snapshot, and returns the change. ok is false when there is no
// previous snapshot or the content is unchanged.
func (t *DescriptorTracker) Diff(path string) (DescriptorChange, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Descriptor deleted; drop the snapshot.
		t.Snapshot(path)

		return DescriptorChange{}, false
	}

	current := string(data)

	t.mu.Lock()
	previous, had := t.snapshots[path]
	t.snapshots[path] = current
	t.mu.Unlock()

	if !had || previous == current {
		return DescriptorChange{}, false
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: fmt.Sprintf("%s (previous)", path),
		ToFile:   fmt.Sprintf("%s (current)", path),
		Context:  3,
	})
	if err != nil {
		return DescriptorChange{}, false
	}

	return DescriptorChange{
		Unified:    unified,
		OldVersion: descriptorVersion(previous),
		NewVersion: descriptorVersion(current),
	}, true
}

// descriptorVersion extracts the version field from raw Chart.yaml content.
func descriptorVersion(content string) string {
	var meta struct {
		Version string `yaml:"version"`
	}

	if err := yaml.Unmarshal([]byte(content), &meta); err != nil {
		return ""
	}

	return meta.Version
}
