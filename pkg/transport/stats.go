package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/jpillora/sizestr"
)

// Stats counts the messages and bytes a Hub has moved
type Stats struct {
	FramesSent     int64
	FramesReceived int64
	BytesSent      int64
	BytesReceived  int64
}

func (s Stats) String() string {
	return fmt.Sprintf("sent %d (%s) received %d (%s)",
		s.FramesSent, sizestr.ToString(s.BytesSent),
		s.FramesReceived, sizestr.ToString(s.BytesReceived))
}

type counters struct {
	framesSent     atomic.Int64
	framesReceived atomic.Int64
	bytesSent      atomic.Int64
	bytesReceived  atomic.Int64
}

func (c *counters) sent(n int) {
	c.framesSent.Add(1)
	c.bytesSent.Add(int64(n))
}

func (c *counters) received(n int) {
	c.framesReceived.Add(1)
	c.bytesReceived.Add(int64(n))
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
	}
}
