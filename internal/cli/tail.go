package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/reportflow/internal/runtime"
	"github.com/drblury/reportflow/internal/runtime/broker"
	"github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/transport"
)

// TailOptions holds flags for the tail command.
type TailOptions struct {
	*RootOptions
	Topics []string
	Pretty bool
}

// NewTailCommand creates the tail command.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print records as they arrive on the broker",
		Long: `Subscribe to the record topics and print one line per record.

By default all three record topics are read. Output is JSON, or a console
layout with --pretty.

Example:
  reportflow tail --pretty
  reportflow tail --topic error-logs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTail(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Topics, "topic", nil, "topics to read (default: the configured record topics)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console output")

	return cmd
}

func runTail(cmd *cobra.Command, opts *TailOptions) error {
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

	topics := opts.Topics
	if len(topics) == 0 {
		topics = broker.TopicsFromConfig(conf).Names()
	}

	tr, err := transport.Build(ctx, conf, transport.RoleSubscribe, logging.NewWatermillAdapter(log))
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	tail, err := runtime.NewTail(tr.Subscriber, runtime.TailOptions{
		Topics: topics,
		Handle: runtime.RecordPrinter(cmd.OutOrStdout(), opts.Pretty),
		Logger: log,
	})
	if err != nil {
		return err
	}
	log.Info("Tailing records", logging.LogFields{"broker": conf.Broker, "topics": topics})
	return tail.Run(ctx)
}
