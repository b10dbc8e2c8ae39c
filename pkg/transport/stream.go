package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DefaultMaxFrameSize bounds the length of one stream frame
const DefaultMaxFrameSize = 16 << 20

// maxLengthDigits is enough for any length accepted under DefaultMaxFrameSize and then some
const maxLengthDigits = 10

type streamConn struct {
	rwc      io.ReadWriteCloser
	r        *bufio.Reader
	maxFrame int
}

// NewStreamConn frames text messages over a byte stream as netstrings:
// "<decimal length>:<text>,". The TextConn owns rwc.
func NewStreamConn(rwc io.ReadWriteCloser) TextConn {
	return NewStreamConnSize(rwc, DefaultMaxFrameSize)
}

// NewStreamConnSize is NewStreamConn with a custom frame size limit
func NewStreamConnSize(rwc io.ReadWriteCloser, maxFrame int) TextConn {
	return &streamConn{
		rwc:      rwc,
		r:        bufio.NewReader(rwc),
		maxFrame: maxFrame,
	}
}

func (c *streamConn) ReadText() (string, error) {
	n := 0
	digits := 0
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && digits > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == ':' {
			if digits == 0 {
				return "", fmt.Errorf("transport: netstring: missing length")
			}
			break
		}
		if b < '0' || b > '9' || digits >= maxLengthDigits {
			return "", fmt.Errorf("transport: netstring: bad length byte %q", b)
		}
		n = n*10 + int(b-'0')
		digits++
		if n > c.maxFrame {
			return "", fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, c.maxFrame)
		}
	}
	buf := make([]byte, n+1)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	if buf[n] != ',' {
		return "", fmt.Errorf("transport: netstring: missing trailing comma")
	}
	return string(buf[:n]), nil
}

func (c *streamConn) WriteText(text string) error {
	if len(text) > c.maxFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(text))
	}
	buf := make([]byte, 0, len(text)+maxLengthDigits+2)
	buf = strconv.AppendInt(buf, int64(len(text)), 10)
	buf = append(buf, ':')
	buf = append(buf, text...)
	buf = append(buf, ',')
	_, err := c.rwc.Write(buf)
	return err
}

func (c *streamConn) Close() error {
	return c.rwc.Close()
}
