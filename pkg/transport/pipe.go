package transport

import (
	"net"

	"github.com/prep/socketpair"

	"github.com/sammck-go/chanbridge/pkg/logger"
)

// Pipe returns two started Hubs connected back to back in memory
func Pipe(lg logger.Logger) (*Hub, *Hub) {
	a, b := net.Pipe()
	return startPair(lg, NewStreamConn(a), NewStreamConn(b))
}

// SocketPair returns two started Hubs connected by a unix domain socket pair
func SocketPair(lg logger.Logger) (*Hub, *Hub, error) {
	a, b, err := socketpair.New("unix")
	if err != nil {
		return nil, nil, err
	}
	ha, hb := startPair(lg, NewStreamConn(a), NewStreamConn(b))
	return ha, hb, nil
}

func startPair(lg logger.Logger, a, b TextConn) (*Hub, *Hub) {
	ha := NewHub(lg, a)
	hb := NewHub(lg, b)
	ha.Start()
	hb.Start()
	return ha, hb
}
