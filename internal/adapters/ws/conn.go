package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla/websocket connection to app.Connection: a
// non-blocking buffered send channel drained by writePump, and a
// Close that's safe to call from any goroutine.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
}

func newWSConn(conn *websocket.Conn, sendBuffer int) *wsConn {
	return &wsConn{ws: conn, send: make(chan []byte, sendBuffer)}
}

// TrySend enqueues data without blocking, matching the non-blocking
// backpressure contract the room's single writer goroutine depends on.
func (c *wsConn) TrySend(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) Close(reason string) error {
	deadline := time.Now().Add(writeWait)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	if c.ws.RemoteAddr() == nil {
		return ""
	}
	return c.ws.RemoteAddr().String()
}
