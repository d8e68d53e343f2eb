package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/chartship/internal/chart"
)

// RunFunc is called each time the watcher triggers a detection run.
type RunFunc func(ctx context.Context) (*RunResult, error)

// RunResult holds the outcome of a single detection run.
type RunResult struct {
	// Marker is the resolved release marker.
	Marker string
	// Pending is the change set: charts that would be released right now.
	Pending []chart.Chart
}

// Options configures the watch behaviour.
type Options struct {
	// ChartsDir is the charts root to watch recursively.
	ChartsDir string

	// Debounce is the quiet period before triggering a re-run.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// Run starts the file watcher and blocks until the context is cancelled or
// a SIGINT/SIGTERM signal is received.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, opts.ChartsDir); err != nil {
		return fmt.Errorf("watching charts directory: %w", err)
	}

	tracker := NewDescriptorTracker()
	tracker.Prime(opts.ChartsDir)

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %s (debounce=%s)\n", opts.ChartsDir, opts.Debounce)

	// Initial run.
	doRun(sigCtx, opts, runFn, "(initial)")

	debouncer := NewDebouncer(opts.Debounce, func(path string) {
		reportDescriptorChange(opts, tracker, path)
		doRun(sigCtx, opts, runFn, path)
	})
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) {
				continue
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// doRun executes a single detection run and prints the status line.
func doRun(ctx context.Context, opts Options, runFn RunFunc, trigger string) {
	now := time.Now().Format("15:04:05")

	result, err := runFn(ctx)
	if err != nil {
		fmt.Fprintf(opts.Out, "[%s] %s → ERROR: %v\n", now, trigger, err)
		return
	}

	if len(result.Pending) == 0 {
		fmt.Fprintf(opts.Out, "[%s] %s → no pending releases (marker %s)\n",
			now, trigger, result.Marker)

		return
	}

	fmt.Fprintf(opts.Out, "[%s] %s → %d pending release(s) since %s\n",
		now, trigger, len(result.Pending), result.Marker)

	for _, c := range result.Pending {
		if c.Version != "" {
			fmt.Fprintf(opts.Out, "  %s → %s\n", c.Name, c.ReleaseTag())
		} else {
			fmt.Fprintf(opts.Out, "  %s\n", c.Name)
		}
	}
}

// reportDescriptorChange prints a diff when the triggering path is a chart
// descriptor that actually changed.
func reportDescriptorChange(opts Options, tracker *DescriptorTracker, path string) {
	if filepath.Base(path) != chart.DescriptorFile {
		return
	}

	change, ok := tracker.Diff(path)
	if !ok {
		return
	}

	if change.VersionBumped() {
		fmt.Fprintf(opts.Out, "  version: %s → %s\n", change.OldVersion, change.NewVersion)
	}

	fmt.Fprint(opts.Out, change.Unified)
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories (e.g., .git).
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}

// isRelevant filters out events on non-chart files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files and hidden files.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
