package endpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammck-go/chanbridge/internal/testutil/testlog"
)

func receive(t *testing.T, p *Port) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := p.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestPairDeliversInOrder(t *testing.T) {
	a, b := NewPair(testlog.New(t))
	defer a.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, a.Send(i))
	}
	require.NoError(t, b.Send("back"))
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, receive(t, b).Payload)
	}
	assert.Equal(t, "back", receive(t, a).Payload)
}

func TestTransferList(t *testing.T) {
	lg := testlog.New(t)
	a, b := NewPair(lg)
	x, y := NewPair(lg)
	defer a.Close()
	defer x.Close()

	require.NoError(t, a.Send(map[string]any{"ch": x}, x))
	msg := receive(t, b)
	require.Len(t, msg.Ports, 1)
	assert.Same(t, x, msg.Ports[0])
	assert.True(t, x.IsTransferred())
	assert.False(t, y.IsTransferred())

	assert.ErrorIs(t, a.Send(nil, x), ErrAlreadyTransferred)
	assert.ErrorIs(t, a.Send(nil, a), ErrInvalidTransfer)
	assert.ErrorIs(t, a.Send(nil, b), ErrInvalidTransfer)
	assert.ErrorIs(t, a.Send(nil, nil), ErrInvalidTransfer)

	// a failed transfer leaves earlier entries untouched
	assert.ErrorIs(t, a.Send(nil, y, x), ErrAlreadyTransferred)
	assert.False(t, y.IsTransferred())
	assert.Equal(t, 0, b.Pending())
}

func TestCloseClosesPeer(t *testing.T) {
	a, b := NewPair(testlog.New(t))
	require.NoError(t, a.Send("queued"))
	require.NoError(t, b.Close())
	require.NoError(t, a.WaitShutdown())

	assert.ErrorIs(t, a.Send("late"), ErrClosed)
	assert.ErrorIs(t, b.Send("late"), ErrClosed)

	// queued messages survive the close
	assert.Equal(t, "queued", receive(t, b).Payload)
	_, err := b.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReceiveUnblocksOnClose(t *testing.T) {
	a, b := NewPair(testlog.New(t))
	errc := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	a.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after close")
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	a, b := NewPair(testlog.New(t))
	defer a.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPortIsNotSerializable(t *testing.T) {
	a, _ := NewPair(nil)
	defer a.Close()
	_, err := json.Marshal(map[string]any{"ch": a})
	assert.ErrorIs(t, err, ErrNotSerializable)
}
