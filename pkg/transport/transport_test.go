package transport

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prep/socketpair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/sammck-go/chanbridge/internal/testutil/testlog"
)

const waitTime = 5 * time.Second

// collect subscribes to h and returns a channel of everything it receives
func collect(h *Hub) (<-chan string, func()) {
	ch := make(chan string, 100)
	cancel := h.Subscribe(func(text string) { ch <- text })
	return ch, cancel
}

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(waitTime):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

// exchange checks that messages flow in order both ways between two hubs
func exchange(t *testing.T, a, b *Hub) {
	t.Helper()
	fromA, cancelB := collect(b)
	defer cancelB()
	fromB, cancelA := collect(a)
	defer cancelA()

	texts := []string{"", "hello", strings.Repeat("x", 100000), `{"identity":"1"}`, "ünïcödé,:"}
	for _, s := range texts {
		require.NoError(t, a.Send(s))
		require.NoError(t, b.Send(s+"!"))
	}
	for _, s := range texts {
		assert.Equal(t, s, next(t, fromA))
		assert.Equal(t, s+"!", next(t, fromB))
	}
}

func TestPipeHubs(t *testing.T) {
	a, b := Pipe(testlog.New(t))
	defer a.Close()
	exchange(t, a, b)

	stats := a.Stats()
	assert.EqualValues(t, 5, stats.FramesSent)
	assert.EqualValues(t, 5, stats.FramesReceived)
	assert.Greater(t, stats.BytesSent, int64(100000))
}

func TestSocketPairHubs(t *testing.T) {
	a, b, err := SocketPair(testlog.New(t))
	require.NoError(t, err)
	defer b.Close()
	exchange(t, a, b)

	// an orderly close at one end is a clean shutdown at the other
	require.NoError(t, a.Close())
	select {
	case <-b.ShutdownDoneChan():
	case <-time.After(waitTime):
		t.Fatal("remote hub did not shut down")
	}
	assert.ErrorIs(t, b.Send("late"), ErrClosed)
}

func TestSubscribers(t *testing.T) {
	a, b := Pipe(testlog.New(t))
	defer a.Close()

	first, cancelFirst := collect(b)
	second, cancelSecond := collect(b)
	defer cancelSecond()
	assert.Equal(t, 2, b.NumSubscribers())

	require.NoError(t, a.Send("one"))
	assert.Equal(t, "one", next(t, first))
	assert.Equal(t, "one", next(t, second))

	cancelFirst()
	cancelFirst()
	assert.Equal(t, 1, b.NumSubscribers())
	require.NoError(t, a.Send("two"))
	assert.Equal(t, "two", next(t, second))
	select {
	case s := <-first:
		t.Errorf("cancelled subscriber received %q", s)
	default:
	}
}

func TestSubscribeDuringDispatch(t *testing.T) {
	a, b := Pipe(testlog.New(t))
	defer a.Close()

	late := make(chan string, 10)
	var cancels []func()
	subscribed := false
	cancels = append(cancels, b.Subscribe(func(text string) {
		if !subscribed {
			subscribed = true
			cancels = append(cancels, b.Subscribe(func(text string) { late <- text }))
		}
	}))
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	require.NoError(t, a.Send("first"))
	require.NoError(t, a.Send("second"))
	assert.Equal(t, "second", next(t, late))
}

func TestWebsocketHubs(t *testing.T) {
	lg := testlog.New(t)
	upgrader := websocket.Upgrader{}
	serverHubs := make(chan *Hub, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverHubs <- NewHub(lg, NewWebsocketConn(ws))
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	client := NewHub(lg, NewWebsocketConn(ws))
	var server *Hub
	select {
	case server = <-serverHubs:
	case <-time.After(waitTime):
		t.Fatal("no websocket connection")
	}
	fromClient, cancel := collect(server)
	defer cancel()
	require.NoError(t, server.Start())
	require.NoError(t, client.Start())
	exchange(t, client, server)

	require.NoError(t, client.Close())
	assert.NoError(t, server.WaitShutdown())
	select {
	case s := <-fromClient:
		t.Errorf("unexpected message %q", s)
	default:
	}
}

func TestSSHChannelHubs(t *testing.T) {
	lg := testlog.New(t)
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	serverConfig := &ssh.ServerConfig{NoClientAuth: true}
	serverConfig.AddHostKey(signer)

	c1, c2, err := socketpair.New("unix")
	require.NoError(t, err)

	serverHubs := make(chan *Hub, 1)
	serverErrs := make(chan error, 1)
	go func() {
		sconn, chans, reqs, err := ssh.NewServerConn(c1, serverConfig)
		if err != nil {
			serverErrs <- err
			return
		}
		go ssh.DiscardRequests(reqs)
		newChannel := <-chans
		ch, chReqs, err := newChannel.Accept()
		if err != nil {
			sconn.Close()
			serverErrs <- err
			return
		}
		serverHubs <- NewHub(lg, NewSSHChannelConn(ch, chReqs))
	}()

	cconn, chans, reqs, err := ssh.NewClientConn(c2, "socketpair", &ssh.ClientConfig{
		User:            "test",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	require.NoError(t, err)
	sshClient := ssh.NewClient(cconn, chans, reqs)
	defer sshClient.Close()
	ch, chReqs, err := sshClient.OpenChannel("chanbridge", nil)
	require.NoError(t, err)
	client := NewHub(lg, NewSSHChannelConn(ch, chReqs))
	defer client.Close()

	var server *Hub
	select {
	case server = <-serverHubs:
	case err := <-serverErrs:
		t.Fatalf("ssh server failed: %v", err)
	case <-time.After(waitTime):
		t.Fatal("no ssh channel")
	}
	defer server.Close()
	require.NoError(t, server.Start())
	require.NoError(t, client.Start())
	exchange(t, client, server)
}

type bufferConn struct {
	bytes.Buffer
}

func (*bufferConn) Close() error { return nil }

func TestStreamFraming(t *testing.T) {
	buf := &bufferConn{}
	c := NewStreamConnSize(buf, 8)
	require.NoError(t, c.WriteText("hi"))
	require.NoError(t, c.WriteText(""))
	assert.Equal(t, "2:hi,0:,", buf.String())
	assert.ErrorIs(t, c.WriteText("123456789"), ErrFrameTooLarge)

	s, err := c.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "hi", s)
	s, err = c.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "", s)
	_, err = c.ReadText()
	assert.ErrorIs(t, err, io.EOF)

	for input, want := range map[string]error{
		"123:":    ErrFrameTooLarge,
		"3:ab":    io.ErrUnexpectedEOF,
		"12":      io.ErrUnexpectedEOF,
		"2:abc":   nil,
		":":       nil,
		"x:":      nil,
		"1:a;":    nil,
		"4:abcd,": nil,
	} {
		buf := &bufferConn{}
		buf.WriteString(input)
		_, err := NewStreamConnSize(buf, 8).ReadText()
		if input == "4:abcd," {
			assert.NoError(t, err, input)
			continue
		}
		assert.Error(t, err, input)
		if want != nil {
			assert.ErrorIs(t, err, want, input)
		}
	}
}
