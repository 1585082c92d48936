package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd собирает корневую команду squll со всеми подкомандами.
// Без подкоманды squll запускает цикл воркера, как run.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:           "squll",
		Short:         "Benchmark worker for the sqalpel work queue",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	opts.Register(rootCmd)

	outputFn := func() *Output {
		return NewOutputTo(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr(), opts.JSON)
	}

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return RunWorker(cmd, opts, outputFn())
	}

	rootCmd.AddCommand(
		NewRunCmd(opts, outputFn),
		NewGetCmd(opts, outputFn),
		NewQueryCmd(opts, outputFn),
		NewPutCmd(opts, outputFn),
		NewDriversCmd(outputFn),
		NewWatchCmd(opts, outputFn),
	)

	return rootCmd
}
