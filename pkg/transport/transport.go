// Package transport carries flat text messages between two processes and fans
// each inbound message out to every subscriber.
package transport

import (
	"errors"
)

var (
	// ErrClosed is returned when sending on a transport that has shut down
	ErrClosed = errors.New("transport: closed")

	// ErrFrameTooLarge is returned when a stream frame exceeds the size limit
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// Handler is called once per inbound text message
type Handler func(text string)

// Transport is a shared, ordered, text-only message pipe. Send is fire-and-forget.
// Subscribe registers h for every subsequent inbound message; the returned cancel
// func removes it and may be called more than once. A handler may still observe a
// message that was being dispatched while it was cancelled.
type Transport interface {
	Send(text string) error
	Subscribe(h Handler) (cancel func())
}

// TextConn is a connection that moves whole text messages
type TextConn interface {
	// ReadText blocks for the next message. It returns io.EOF after an orderly close
	// by the remote end.
	ReadText() (string, error)

	// WriteText sends one message. Calls must not be concurrent.
	WriteText(text string) error

	// Close releases the connection, unblocking ReadText
	Close() error
}
