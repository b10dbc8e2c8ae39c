package transport

import (
	"golang.org/x/crypto/ssh"
)

// NewSSHChannelConn frames text messages over an SSH channel, as NewStreamConn does.
// Out-of-band channel requests are discarded. The TextConn owns ch.
func NewSSHChannelConn(ch ssh.Channel, reqs <-chan *ssh.Request) TextConn {
	if reqs != nil {
		go ssh.DiscardRequests(reqs)
	}
	return NewStreamConn(ch)
}
