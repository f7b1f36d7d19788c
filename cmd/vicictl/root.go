package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/vicictl/internal/client"
	"github.com/danmuck/vicictl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	socket     string
	timeout    time.Duration
	logLevel   string
	output     string

	cfg    cliConfig
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "vicictl",
		Short: "Talk to the strongSwan charon daemon over VICI",
		Long: `vicictl issues VICI commands to the charon IKE daemon, streams the
events a command produces and listens for asynchronous event
notifications.

Request arguments use key=value, list[]=item and section.key=value.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVarP(&opts.socket, "socket", "s", "", "daemon endpoint (socket path, unix:// or tcp://)")
	flags.DurationVarP(&opts.timeout, "timeout", "t", 0, "read timeout for daemon replies (0 waits forever)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	flags.StringVarP(&opts.output, "output", "o", formatText, "output format (text, yaml)")

	root.AddCommand(
		callCmd(opts),
		streamCmd(opts),
		listenCmd(opts),
		versionCmd(),
	)
	return root
}

// resolve merges the config file with any flags set on the command line.
func (o *globalOptions) resolve(cmd *cobra.Command) error {
	logging.ConfigureRuntime()
	if o.logLevel != "" {
		lvl, ok := logging.ParseLevel(o.logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", o.logLevel)
		}
		zerolog.SetGlobalLevel(lvl)
		log.Logger = log.Logger.Level(lvl)
	}
	o.logger = log.Logger.With().Str("app", "vicictl").Logger()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.Session.Endpoint = o.socket
	}
	if flags.Changed("timeout") {
		cfg.Session.ReadTimeout = o.timeout
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *globalOptions) dial(ctx context.Context) (*client.Client, error) {
	return client.Dial(ctx, o.cfg.Session, client.WithLogger(o.logger))
}
