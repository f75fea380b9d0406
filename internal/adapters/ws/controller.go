package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/beatsync/server/internal/app"
	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// writeWait bounds how long a single frame write (including pings and
// the close handshake) is allowed to take.
const writeWait = 10 * time.Second

var errSendBufferFull = app.ErrSendBufferFull

// Config bounds the keepalive and framing behavior of every connection
// the Controller upgrades, read once at startup from the process
// config rather than hardcoded per-connection.
type Config struct {
	ReadLimitBytes int64
	PongWait       time.Duration
	PingPeriod     time.Duration
	SendBuffer     int
}

// DefaultConfig mirrors the keepalive timing of a typical production
// deployment: generous enough that a phone's radio waking from idle
// doesn't get disconnected, tight enough to notice a dead peer quickly.
func DefaultConfig() Config {
	return Config{
		ReadLimitBytes: 32 * 1024,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		SendBuffer:     256,
	}
}

// Controller upgrades incoming HTTP requests on the websocket endpoint
// to a room connection and runs each connection's read/write pumps.
type Controller struct {
	registry   *app.Registry
	dispatcher *app.Dispatcher
	cfg        Config
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewController wires a Controller to the registry and dispatcher that
// own room state and message handling.
func NewController(registry *app.Registry, dispatcher *app.Dispatcher, cfg Config, log zerolog.Logger) *Controller {
	return &Controller{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("module", "ws").Logger(),
	}
}

// Handle is the gin handler bound to the websocket route. It expects
// roomId, clientId, and username as query parameters — the client
// negotiates and generates these before ever opening the socket.
func (c *Controller) Handle(ctx *gin.Context) {
	roomID := domain.RoomID(ctx.Query("roomId"))
	clientID := domain.ClientID(ctx.Query("clientId"))
	username := ctx.Query("username")
	if roomID == "" || clientID == "" || username == "" {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}

	wsc, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	conn := newWSConn(wsc, c.cfg.SendBuffer)
	room := c.registry.GetOrCreateRoom(roomID)
	if err := room.AddClient(clientID, username, conn, time.Now()); err != nil {
		c.log.Warn().Err(err).Str("clientId", string(clientID)).Msg("join rejected")
		_ = conn.Close("join rejected")
		return
	}

	go c.writePump(conn)
	go c.readPump(ctx.Request.Context(), conn, room, roomID, clientID)
}

func (c *Controller) readPump(ctx context.Context, conn *wsConn, room *app.Room, roomID domain.RoomID, clientID domain.ClientID) {
	defer func() {
		room.RemoveClient(clientID)
		conn.ws.Close()
	}()

	conn.ws.SetReadLimit(c.cfg.ReadLimitBytes)
	_ = conn.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		receiveMillis := core.NowMillis()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Str("clientId", string(clientID)).Msg("read error")
			}
			return
		}

		resp, handleErr := c.dispatcher.Dispatch(ctx, roomID, clientID, data, receiveMillis)
		if handleErr != nil {
			c.log.Debug().Err(handleErr).Str("clientId", string(clientID)).Msg("dispatch failed")
		}
		if resp != nil {
			_ = conn.TrySend(resp)
		}
	}
}

func (c *Controller) writePump(conn *wsConn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
