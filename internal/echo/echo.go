// Package echo is a small service used to exercise a bridged connection end to
// end: each request carries a reply Port, and the answer comes back on it.
package echo

import (
	"context"
	"errors"
	"fmt"

	"github.com/sammck-go/chanbridge/pkg/endpoint"
	"github.com/sammck-go/chanbridge/pkg/logger"
)

// Payload keys
const (
	KeyText  = "text"
	KeyReply = "reply"
	KeyEcho  = "echo"
	KeyError = "error"
)

// Serve answers requests arriving on port until it is closed or ctx is done. A
// request {"text": s, "reply": <Port>} is answered with {"echo": s} on the reply
// Port, which is then closed. Without a reply Port the answer goes back on port.
func Serve(ctx context.Context, lg logger.Logger, port *endpoint.Port) error {
	for {
		msg, err := port.Receive(ctx)
		if err != nil {
			if errors.Is(err, endpoint.ErrClosed) {
				return nil
			}
			return err
		}
		answer(lg, port, msg.Payload)
	}
}

func answer(lg logger.Logger, port *endpoint.Port, v any) {
	req, _ := v.(map[string]any)
	reply, _ := req[KeyReply].(*endpoint.Port)
	to := port
	if reply != nil {
		to = reply
		defer reply.Close()
	}
	var resp map[string]any
	if text, ok := req[KeyText].(string); ok {
		lg.DLogf("echo %q", text)
		resp = map[string]any{KeyEcho: text}
	} else {
		resp = map[string]any{KeyError: fmt.Sprintf("request must hold a %q string", KeyText)}
	}
	if err := to.Send(resp); err != nil {
		lg.DLogf("Could not answer: %s", err)
	}
}

// Call sends text to the echo service behind port and waits for the answer
func Call(ctx context.Context, port *endpoint.Port, text string) (string, error) {
	mine, theirs := endpoint.NewPair(nil)
	defer mine.Close()
	if err := port.Send(map[string]any{KeyText: text, KeyReply: theirs}); err != nil {
		return "", err
	}
	msg, err := mine.Receive(ctx)
	if err != nil {
		return "", fmt.Errorf("echo %q: %w", text, err)
	}
	resp, _ := msg.Payload.(map[string]any)
	if s, ok := resp[KeyEcho].(string); ok {
		return s, nil
	}
	if s, ok := resp[KeyError].(string); ok {
		return "", fmt.Errorf("echo %q: %s", text, s)
	}
	return "", fmt.Errorf("echo %q: unexpected answer %v", text, msg.Payload)
}
