// Package cli implements the reportflow command line.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	configpkg "github.com/drblury/reportflow/internal/runtime/config"
	"github.com/drblury/reportflow/internal/runtime/logging"

	_ "github.com/drblury/reportflow/transport/transports"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	EnvFiles  []string
	EnvPrefix string
	// LogOutput receives service logs; nil means stderr.
	LogOutput io.Writer
}

// NewRootCommand creates the reportflow command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reportflow",
		Short: "Report generation service with a broker-backed audit trail",
		Long: `reportflow serves the report API and publishes a structured record for
every request outcome, pipeline event and error to the configured broker.

Configuration is read from REPORTFLOW_* environment variables. Files given
with --env-file are loaded first; variables already set take precedence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.EnvPrefix, "env-prefix", configpkg.DefaultEnvPrefix, "environment variable prefix")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) load() (*configpkg.Config, error) {
	return configpkg.Load(o.EnvPrefix, o.EnvFiles...)
}

func (o *RootOptions) logger(conf *configpkg.Config) (logging.ServiceLogger, error) {
	w := o.LogOutput
	if w == nil {
		w = os.Stderr
	}
	log, err := logging.New(w, conf.LogLevel, conf.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogServiceLogger(log).With(logging.LogFields{
		"service":     conf.ServiceName,
		"environment": conf.Environment,
	}), nil
}
