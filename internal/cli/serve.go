package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sammck-go/chanbridge/internal/server"
	"github.com/sammck-go/chanbridge/pkg/config"
	"github.com/sammck-go/chanbridge/pkg/logger"
)

func newServeCmd(a *app) *cobra.Command {
	var listen, codec string
	var requestLog bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept websocket connections and run the echo service on each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("codec") {
				cfg.Bridge.Codec = codec
			}
			if cmd.Flags().Changed("request-log") {
				cfg.Server.RequestLog = requestLog
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.configPath != "" {
				err := config.Watch(ctx, a.configPath, func(c *config.Config, err error) {
					if err != nil {
						a.lg.WLogf("Ignoring configuration change: %s", err)
						return
					}
					level := logger.StringToLogLevel(c.Log.Level)
					if level != a.lg.GetLogLevel() {
						a.lg.ILogf("Log level now %s", level)
						a.lg.SetLogLevel(level)
					}
				})
				if err != nil {
					a.lg.WLogf("Not watching %s: %s", a.configPath, err)
				}
			}

			s, err := server.New(a.lg, cfg, BuildVersion)
			if err != nil {
				return err
			}
			err = s.ListenAndServe(ctx, cfg.Server.Listen)
			if ctx.Err() != nil {
				a.lg.ILogf("Stopped: %s", err)
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from configuration)")
	cmd.Flags().StringVar(&codec, "codec", "", "envelope codec: json, cbor or proto")
	cmd.Flags().BoolVar(&requestLog, "request-log", false, "log every HTTP request")
	return cmd
}
