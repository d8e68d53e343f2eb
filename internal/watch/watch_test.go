package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chartship/internal/chart"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		callCount.Add(1)
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("a.yaml")

	// Wait for debounce to fire.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "a.yaml", lastPath.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(_ string) {
		callCount.Add(1)
	})
	defer d.Stop()

	// Fire 10 rapid events — should coalesce into 1.
	for i := 0; i < 10; i++ {
		d.Trigger("file.yaml")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("first.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("second.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("third.yaml")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.yaml", lastPath.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(_ string) {
		callCount.Add(1)
	})

	d.Trigger("a.yaml")
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

// ---------------------------------------------------------------------------
// DescriptorTracker
// ---------------------------------------------------------------------------

func writeDescriptor(t *testing.T, dir, version string) string {
	t.Helper()

	path := filepath.Join(dir, chart.DescriptorFile)
	content := "apiVersion: v2\nname: foo\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDescriptorTracker_DiffAfterEdit(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "1.0.0")

	tracker := NewDescriptorTracker()
	tracker.Snapshot(path)

	writeDescriptor(t, dir, "1.1.0")

	change, ok := tracker.Diff(path)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", change.OldVersion)
	assert.Equal(t, "1.1.0", change.NewVersion)
	assert.True(t, change.VersionBumped())
	assert.Contains(t, change.Unified, "-version: 1.0.0")
	assert.Contains(t, change.Unified, "+version: 1.1.0")
}

func TestDescriptorTracker_NoChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "1.0.0")

	tracker := NewDescriptorTracker()
	tracker.Snapshot(path)

	_, ok := tracker.Diff(path)
	assert.False(t, ok)
}

func TestDescriptorTracker_NoPriorSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "1.0.0")

	tracker := NewDescriptorTracker()

	_, ok := tracker.Diff(path)
	assert.False(t, ok)

	// The first Diff primes the snapshot: a later edit now produces a diff.
	writeDescriptor(t, dir, "2.0.0")

	change, ok := tracker.Diff(path)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", change.NewVersion)
}

func TestDescriptorTracker_DeletedDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "1.0.0")

	tracker := NewDescriptorTracker()
	tracker.Snapshot(path)

	require.NoError(t, os.Remove(path))

	_, ok := tracker.Diff(path)
	assert.False(t, ok)
}

func TestDescriptorTracker_Prime(t *testing.T) {
	root := t.TempDir()
	fooDir := filepath.Join(root, "foo")
	require.NoError(t, os.MkdirAll(fooDir, 0o750))
	path := writeDescriptor(t, fooDir, "1.0.0")

	tracker := NewDescriptorTracker()
	tracker.Prime(root)

	writeDescriptor(t, fooDir, "1.0.1")

	change, ok := tracker.Diff(path)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", change.OldVersion)
}

// ---------------------------------------------------------------------------
// Event filtering
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write to chart file", fsnotify.Event{Name: "charts/foo/Chart.yaml", Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: "charts/foo/values.yaml", Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: "charts/foo/values.yaml", Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: "charts/foo/Chart.yaml", Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: "charts/foo/.git", Op: fsnotify.Write}, false},
		{"editor backup", fsnotify.Event{Name: "charts/foo/Chart.yaml~", Op: fsnotify.Write}, false},
		{"vim swap", fsnotify.Event{Name: "charts/foo/.Chart.yaml.swp", Op: fsnotify.Write}, false},
		{"zero op", fsnotify.Event{Name: "charts/foo/Chart.yaml"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRelevant(tt.event))
		})
	}
}
