package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammck-go/chanbridge/internal/client"
	"github.com/sammck-go/chanbridge/internal/echo"
	"github.com/sammck-go/chanbridge/internal/testutil/testlog"
	"github.com/sammck-go/chanbridge/pkg/bridge"
	"github.com/sammck-go/chanbridge/pkg/config"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(testlog.New(t), cfg, "v-test")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), "127.0.0.1:0"))
	t.Cleanup(func() { s.Close() })
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RequestLog = true
	s := startServer(t, cfg)
	base := "http://" + s.Addr().String()

	code, body := get(t, base+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK\n", body)

	_, body = get(t, base+"/version")
	assert.Equal(t, "v-test", body)

	code, _ = get(t, base+cfg.Server.Path)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEchoOverWebsocket(t *testing.T) {
	for _, codec := range []string{"json", "cbor", "proto"} {
		t.Run(codec, func(t *testing.T) {
			lg := testlog.New(t)
			cfg := config.Default()
			cfg.Bridge.Codec = codec
			s := startServer(t, cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ccfg := cfg.Client
			ccfg.URL = "ws://" + s.Addr().String() + cfg.Server.Path
			hub, err := client.DialHub(ctx, lg, ccfg)
			require.NoError(t, err)
			defer hub.Close()
			c, err := wire.Lookup(codec)
			require.NoError(t, err)
			port, err := bridge.Wrap(hub, "", bridge.WithLogger(lg), bridge.WithCodec(c))
			require.NoError(t, err)
			require.NoError(t, hub.Start())

			for _, text := range []string{"one", "two", "three"} {
				got, err := echo.Call(ctx, port, text)
				require.NoError(t, err)
				assert.Equal(t, text, got)
			}
		})
	}
}

func TestCloseReleasesConnections(t *testing.T) {
	lg := testlog.New(t)
	cfg := config.Default()
	s := startServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ccfg := cfg.Client
	ccfg.URL = "ws://" + s.Addr().String() + cfg.Server.Path
	hub, err := client.DialHub(ctx, lg, ccfg)
	require.NoError(t, err)
	port, err := bridge.Wrap(hub, "", bridge.WithLogger(lg))
	require.NoError(t, err)
	require.NoError(t, hub.Start())
	_, err = echo.Call(ctx, port, "ping")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	select {
	case <-port.ShutdownDoneChan():
	case <-ctx.Done():
		t.Fatal("client port survived server shutdown")
	}
}

func TestStopsWithContext(t *testing.T) {
	s, err := New(testlog.New(t), config.Default(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "127.0.0.1:0"))
	cancel()
	select {
	case <-s.ShutdownDoneChan():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.ErrorIs(t, s.WaitShutdown(), context.Canceled)
	_, err = http.Get("http://" + s.Addr().String() + "/health")
	assert.Error(t, err)
}
