// Package watch provides a development-time file watcher for the charts
// root. It monitors chart directories for changes, debounces rapid events,
// re-runs change detection, and reports descriptor diffs when a Chart.yaml
// is edited.
package watch
