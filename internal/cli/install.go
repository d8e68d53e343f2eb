package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chartship/internal/logging"
	"github.com/hupe1980/chartship/internal/releaser"
)

type installOptions struct {
	crVersion string
	cacheDir  string
}

func newInstallCommand() *cobra.Command {
	opts := &installOptions{}

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the chart-releaser (cr) binary",
		Long: `Install the chart-releaser binary into the tool cache without
running a release, and print the resolved binary path.

The binary lands in a per-version, per-architecture directory below the
tool cache; the process PATH is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.crVersion, "cr-version", "v", defaultCrVersion, "chart-releaser version to install")
	f.StringVarP(&opts.cacheDir, "install-dir", "n", "", "tool cache directory (default: $RUNNER_TOOL_CACHE or the user cache)")

	return cmd
}

func runInstall(ctx context.Context, cmd *cobra.Command, opts *installOptions) error {
	cacheDir, err := resolveCacheDir(opts.cacheDir)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	installer := &releaser.Installer{
		CacheDir: cacheDir,
		Version:  opts.crVersion,
		Logger:   logging.FromContext(ctx),
	}

	bin, err := installer.Ensure(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), bin)

	return err
}
