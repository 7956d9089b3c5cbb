package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := defaultSoakOptions()

	cmd := &cobra.Command{
		Use:   "hubsoak",
		Short: "Soak-test an eventhub with synthetic events",
		Long: `hubsoak subscribes synthetic handlers over a few event types, publishes
a stream of events through them, then tears the session down and prints
throughput and a leak report.

Handlers owned by scoped bindings are released before leaks are counted.
Handlers added with --leak are not, so they show up in the report.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.logOut = cmd.ErrOrStderr()
			return runSoak(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "settings file (.yaml, .yml or .json)")
	flags.IntVarP(&opts.events, "events", "n", opts.events, "number of events to publish")
	flags.IntVar(&opts.handlers, "handlers", opts.handlers, "bound handlers per event type")
	flags.IntVar(&opts.leak, "leak", opts.leak, "unbound handlers per event type left for the leak report")
	flags.IntVar(&opts.oneShot, "one-shot", opts.oneShot, "handlers per event type that remove themselves on first delivery")
	flags.BoolVar(&opts.instrumented, "instrumented", false, "publish through the traced, metered path")

	return cmd
}
