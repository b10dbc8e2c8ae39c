// Package server accepts websocket connections and runs the echo service over a
// bridged Port on each one.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"

	"github.com/sammck-go/chanbridge/internal/echo"
	"github.com/sammck-go/chanbridge/pkg/asyncobj"
	"github.com/sammck-go/chanbridge/pkg/bridge"
	"github.com/sammck-go/chanbridge/pkg/config"
	"github.com/sammck-go/chanbridge/pkg/logger"
	"github.com/sammck-go/chanbridge/pkg/transport"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

// Server is an HTTP server with a websocket endpoint and graceful shutdown.
// Every accepted connection becomes a child that is closed with the Server.
type Server struct {
	*asyncobj.Helper
	cfg        config.ServerConfig
	bridgeOpts []bridge.Option
	version    string
	upgrader   websocket.Upgrader
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server from cfg. version is reported on /version.
func New(lg logger.Logger, cfg *config.Config, version string) (*Server, error) {
	codec, err := wire.Lookup(cfg.Bridge.Codec)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg.Server,
		version: version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		httpServer: &http.Server{},
	}
	s.Helper = asyncobj.NewHelper(lg.Fork("server"), s)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.bridgeOpts = []bridge.Option{
		bridge.WithLogger(s.Logger),
		bridge.WithCodec(codec),
		bridge.WithIdleTimeout(cfg.Bridge.IdleTimeout.Std()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebsocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK\n"))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(s.version))
	})
	h := http.Handler(mux)
	if s.cfg.RequestLog {
		h = requestlog.Wrap(h)
	}
	s.handler = h
	s.httpServer.Handler = h
	return s, nil
}

// Handler returns the Server's HTTP handler, for mounting elsewhere
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves in the background. The Server shuts down when
// ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	return s.DoOnceActivate(
		func() error {
			s.ShutdownOnContext(ctx)
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return s.DLogErrorf("Listen failed: %w", err)
			}
			s.listener = l
			s.ILogf("Listening on %s%s", l.Addr(), s.cfg.Path)
			go func() {
				err := s.httpServer.Serve(l)
				if err == http.ErrServerClosed {
					err = nil
				}
				s.StartShutdown(err)
			}()
			return nil
		},
		true,
	)
}

// ListenAndServe runs the Server on addr until ctx is done or the Server is closed
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Start(ctx, addr); err != nil {
		return err
	}
	return s.WaitShutdown()
}

// Addr returns the listening address once Start has succeeded
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected a websocket upgrade", http.StatusBadRequest)
		return
	}
	if err := s.DeferShutdown(); err != nil {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.UndeferShutdown()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.DLogf("Failed to upgrade to websocket: %s", err)
		return
	}
	hub := transport.NewHub(s.Logger, transport.NewWebsocketConn(ws))
	s.AddShutdownChild(hub)
	port, err := bridge.Wrap(hub, "", s.bridgeOpts...)
	if err != nil {
		hub.StartShutdown(err)
		return
	}
	s.DLogf("Connection from %s on %s", r.RemoteAddr, hub)
	go func() {
		if err := echo.Serve(s.ctx, s.Logger, port); err != nil {
			s.DLogf("%s: echo service stopped: %s", hub, err)
		}
	}()
	if err := hub.Start(); err != nil {
		s.DLogf("%s: %s", hub, err)
	}
}

// HandleOnceShutdown stops accepting connections; open connections are closed as
// children
func (s *Server) HandleOnceShutdown(completionErr error) error {
	s.DLogf("HandleOnceShutdown")
	s.cancel()
	err := s.httpServer.Close()
	if err != nil {
		err = fmt.Errorf("close http server: %w", err)
	}
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}
