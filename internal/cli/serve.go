package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/reportflow/internal/runtime"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report API and record publisher",
		Long: `Run the HTTP API and publish records to the configured broker.

SIGINT or SIGTERM stops the HTTP server, drains queued records and closes
the broker session within REPORTFLOW_PUBLISH_SHUTDOWN_GRACE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := opts.load()
			if err != nil {
				return err
			}
			log, err := opts.logger(conf)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := runtime.NewService(ctx, conf, log, runtime.ServiceDependencies{})
			if err != nil {
				return err
			}
			return svc.Start(ctx)
		},
	}
}
