package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

type websocketConn struct {
	ws *websocket.Conn
}

// NewWebsocketConn adapts a websocket to a TextConn: each message is one websocket
// text message. Binary messages are ignored. The TextConn owns ws.
func NewWebsocketConn(ws *websocket.Conn) TextConn {
	return &websocketConn{ws: ws}
}

func (c *websocketConn) String() string {
	return fmt.Sprintf("websocket %s", c.ws.RemoteAddr())
}

func (c *websocketConn) ReadText() (string, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if mt == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *websocketConn) WriteText(text string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal close frame, best effort, then closes the socket
func (c *websocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.ws.Close()
}
