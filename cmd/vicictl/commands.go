package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/danmuck/vicictl/internal/client"
	"github.com/danmuck/vicictl/internal/listener"
	"github.com/danmuck/vicictl/internal/observability"
	"github.com/danmuck/vicictl/internal/protocol/wire"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func callCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <command> [key=value ...]",
		Short: "Issue one command and print its response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRequestArgs(args[1:])
			if err != nil {
				return err
			}
			out, err := newPrinter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			defer out.Close()

			c, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(args[0], req)
			if err != nil {
				return err
			}
			return out.Response(resp)
		},
	}
}

func streamCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stream <command> <event> [key=value ...]",
		Short: "Issue a command and print the events it streams",
		Long: `stream registers for <event>, issues <command>, prints every event
received before the response and then the response itself. For example:

  vicictl stream list-sas list-sa ike=home`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, event := args[0], args[1]
			req, err := parseRequestArgs(args[2:])
			if err != nil {
				return err
			}
			out, err := newPrinter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			defer out.Close()

			c, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return runStream(c, out, command, event, req)
		},
	}
}

func runStream(c *client.Client, out *printer, command, event string, req *wire.Message) error {
	if err := c.RegisterEvent(event); err != nil {
		return err
	}

	var printErr error
	resp, callErr := c.CallStreaming(command, req, func(name string, msg *wire.Message) {
		if printErr == nil {
			printErr = out.Event(name, msg)
		}
	})
	unregErr := c.UnregisterEvent(event)
	if callErr != nil {
		return callErr
	}
	if printErr != nil {
		return printErr
	}
	if err := out.Response(resp); err != nil {
		return err
	}
	return unregErr
}

func listenCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr  string
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "listen [event ...]",
		Short: "Print asynchronous events until interrupted",
		Long: `listen registers for the given events (or listen_events from the
config file) and prints each one as it arrives. With --metrics-addr it also
serves /health, /metrics and /subscriptions over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			events := opts.cfg.ListenEvents
			if len(args) > 0 {
				events = normalizeEvents(args)
			}
			if cmd.Flags().Changed("metrics-addr") {
				opts.cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("poll-interval") {
				opts.cfg.PollInterval = pollInterval
			}

			out, err := newPrinter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			defer out.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := opts.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			l := listener.New(c, listener.Config{Events: events, PollInterval: opts.cfg.PollInterval}, out.Event).
				WithLogger(opts.logger)
			return runListen(ctx, l, c, opts)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve metrics and health on this address")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", listener.DefaultPollInterval, "how often the listener checks for shutdown")
	return cmd
}

func runListen(ctx context.Context, l *listener.Listener, c *client.Client, opts *globalOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(ctx)
	})

	if addr := opts.cfg.MetricsAddr; addr != "" {
		router := observability.NewRouter("vicictl", opts.logger)
		router.GET("/subscriptions", func(gc *gin.Context) {
			subs := c.Subscriptions()
			observability.Annotate(gc, "subscriptions", len(subs))
			observability.Annotate(gc, "delivered", l.Delivered())
			gc.JSON(http.StatusOK, gin.H{
				"endpoint":      opts.cfg.Session.Endpoint,
				"delivered":     l.Delivered(),
				"subscriptions": subs,
			})
		})
		srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			opts.logger.Info().Str("addr", addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func versionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, version)
				return
			}
			fmt.Fprintf(w, "vicictl %s\n", version)
			fmt.Fprintf(w, "  Commit:     %s\n", commit)
			fmt.Fprintf(w, "  Built:      %s\n", date)
			fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
