package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sammck-go/chanbridge/internal/client"
	"github.com/sammck-go/chanbridge/internal/echo"
	"github.com/sammck-go/chanbridge/pkg/bridge"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

func newDialCmd(a *app) *cobra.Command {
	var url, codec string
	cmd := &cobra.Command{
		Use:   "dial [text...]",
		Short: "Connect to a server and echo each argument through a nested channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("url") {
				cfg.Client.URL = url
			}
			if cmd.Flags().Changed("codec") {
				cfg.Bridge.Codec = codec
			}
			c, err := wire.Lookup(cfg.Bridge.Codec)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			hub, err := client.DialHub(ctx, a.lg, cfg.Client)
			if err != nil {
				return err
			}
			defer hub.Close()
			port, err := bridge.Wrap(hub, "", bridge.WithLogger(a.lg), bridge.WithCodec(c))
			if err != nil {
				return err
			}
			defer port.Close()
			if err := hub.Start(); err != nil {
				return err
			}

			for _, text := range args {
				callCtx, cancel := contextWithTimeout(ctx, cfg.Client.Timeout.Std())
				got, err := echo.Call(callCtx, port, text)
				cancel()
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), got); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "server websocket URL (default from configuration)")
	cmd.Flags().StringVar(&codec, "codec", "", "envelope codec: json, cbor or proto")
	return cmd
}

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
