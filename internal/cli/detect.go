package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chartship/internal/logging"
	"github.com/hupe1980/chartship/internal/output"
)

type detectOptions struct {
	chartsDir  string
	policy     string
	gitTimeout time.Duration
	outputPath string
	format     string
}

func newDetectCommand() *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the charts that need a release",
		Long: `Detect which charts changed since the last release and print the
change set without packaging or uploading anything.

Useful for CI gating: an empty change set means there is nothing to
release.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.chartsDir, "charts-dir", "d", "charts", "charts root directory, relative to the repository root")
	f.StringVar(&opts.policy, "policy", "tag", "change detection policy: tag or diff")
	f.DurationVar(&opts.gitTimeout, "git-timeout", 30*time.Second, "timeout per git invocation")
	f.StringVarP(&opts.outputPath, "output", "o", "", "output file path (default: stdout)")
	f.StringVar(&opts.format, "format", "text", "output format: text, json, yaml")

	return cmd
}

func runDetect(ctx context.Context, cmd *cobra.Command, opts *detectOptions) error {
	logger := logging.FromContext(ctx)

	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	det, err := newDetection(ctx, opts.chartsDir, opts.policy, opts.gitTimeout)
	if err != nil {
		return err
	}

	marker, err := det.detector.ResolveMarker(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	changed, err := det.detector.Detect(ctx, det.chartsRel, marker)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	report := output.NewReport(marker, opts.policy, changed)

	data, err := report.Serialize(format)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	var w output.Writer
	if opts.outputPath != "" {
		w = output.NewFileWriter(opts.outputPath, output.WithLogger(logger))
	} else {
		w = output.NewStdoutWriter(cmd.OutOrStdout())
	}

	if err := w.Write(data); err != nil {
		return &ExitError{Code: 6, Err: err}
	}

	logger.Info("change detection complete",
		slog.String("marker", marker),
		slog.Int("changed", len(changed)),
	)

	return nil
}
