// Package client connects to a chanbridge server
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/sammck-go/chanbridge/pkg/config"
	"github.com/sammck-go/chanbridge/pkg/logger"
	"github.com/sammck-go/chanbridge/pkg/transport"
)

// Dial opens a websocket to cfg.URL. Failed attempts are retried with exponential
// backoff, capped at cfg.MaxRetryInterval, up to cfg.MaxRetryCount more times.
func Dial(ctx context.Context, lg logger.Logger, cfg config.ClientConfig) (*websocket.Conn, error) {
	b := &backoff.Backoff{Max: cfg.MaxRetryInterval.Std()}
	d := websocket.Dialer{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.Timeout.Std(),
	}
	for {
		ws, _, err := d.DialContext(ctx, cfg.URL, nil)
		if err == nil {
			lg.DLogf("Connected to %s", cfg.URL)
			return ws, nil
		}
		attempt := int(b.Attempt())
		msg := fmt.Sprintf("Connection error: %s", err)
		if attempt > 0 {
			msg += fmt.Sprintf(" (Attempt: %d/%d)", attempt, cfg.MaxRetryCount)
		}
		lg.DLogf("%s", msg)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= cfg.MaxRetryCount {
			return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
		}
		delay := b.Duration()
		lg.ILogf("Retrying in %s...", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// DialHub is Dial followed by wrapping the websocket in an unstarted Hub
func DialHub(ctx context.Context, lg logger.Logger, cfg config.ClientConfig) (*transport.Hub, error) {
	ws, err := Dial(ctx, lg, cfg)
	if err != nil {
		return nil, err
	}
	return transport.NewHub(lg, transport.NewWebsocketConn(ws)), nil
}
