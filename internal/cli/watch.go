package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chartship/internal/logging"
	"github.com/hupe1980/chartship/internal/watch"
)

type watchOptions struct {
	chartsDir  string
	policy     string
	gitTimeout time.Duration
	debounce   time.Duration
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the charts root and report pending releases",
		Long: `Watch the charts root for changes and re-run change detection on
every edit, printing the charts that would be released. When a
Chart.yaml changes, the descriptor diff and version bump are shown.

A development convenience; nothing is packaged or uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.chartsDir, "charts-dir", "d", "charts", "charts root directory, relative to the repository root")
	f.StringVar(&opts.policy, "policy", "tag", "change detection policy: tag or diff")
	f.DurationVar(&opts.gitTimeout, "git-timeout", 30*time.Second, "timeout per git invocation")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "quiet period before re-running detection")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *watchOptions) error {
	det, err := newDetection(ctx, opts.chartsDir, opts.policy, opts.gitTimeout)
	if err != nil {
		return err
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.ChartsDir = det.chartsRoot
	watchOpts.Debounce = opts.debounce
	watchOpts.Logger = logging.FromContext(ctx)
	watchOpts.Out = cmd.ErrOrStderr()

	runFn := func(runCtx context.Context) (*watch.RunResult, error) {
		marker, err := det.detector.ResolveMarker(runCtx)
		if err != nil {
			return nil, err
		}

		pending, err := det.detector.Detect(runCtx, det.chartsRel, marker)
		if err != nil {
			return nil, err
		}

		return &watch.RunResult{Marker: marker, Pending: pending}, nil
	}

	if err := watch.Run(ctx, watchOpts, runFn); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
