package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/beatsync/server/internal/adapters/storage"
	"github.com/beatsync/server/internal/adapters/ws"
	"github.com/beatsync/server/internal/app"
	"github.com/beatsync/server/internal/config"
	"github.com/beatsync/server/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware stamps every request with a long-lived
// anonymous client token cookie and stores it in the gin context under
// "client_token". Nothing in this router reads it back, and it is never
// used for authorization; the remembered room lives in the separate
// "beatsync" session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// corsMiddleware allows any origin to call the HTTP surface, matching
// the websocket endpoint's own CheckOrigin policy.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Deps bundles the collaborators SetupRouter wires into handlers,
// already fully constructed by the composition root.
type Deps struct {
	Registry      *app.Registry
	Dispatcher    *app.Dispatcher
	Blobs         *storage.LocalBlobStore
	WSController  *ws.Controller
	DefaultTracks []domain.AudioSource
	StartedAt     time.Time
}

// SetupRouter builds the full gin engine: the websocket upgrade
// endpoint, room discovery, upload URL minting, and the blob PUT
// receiver the minted URLs point back at.
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("beatsync", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		rooms := deps.Registry.Rooms()
		active := 0
		clients := 0
		for _, rm := range rooms {
			n := rm.ClientCount()
			clients += n
			if n > 0 {
				active++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"uptimeSeconds": int(time.Since(deps.StartedAt).Seconds()),
			"totalRooms":    len(rooms),
			"activeRooms":   active,
			"totalClients":  clients,
		})
	})

	r.GET("/active-rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": len(deps.Registry.ActiveRooms())})
	})

	r.GET("/discover", func(c *gin.Context) {
		session := sessions.Default(c)
		roomID, _ := session.Get("lastRoomId").(string)
		if roomID == "" {
			c.JSON(http.StatusOK, gin.H{"roomId": nil})
			return
		}
		if _, ok := deps.Registry.GetRoom(domain.RoomID(roomID)); !ok {
			c.JSON(http.StatusOK, gin.H{"roomId": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"roomId": roomID})
	})

	r.GET("/default", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tracks": deps.DefaultTracks})
	})

	r.POST("/rooms", func(c *gin.Context) {
		roomID := deps.Registry.NewRoomID()
		deps.Registry.GetOrCreateRoom(roomID)
		session := sessions.Default(c)
		session.Set("lastRoomId", string(roomID))
		_ = session.Save()
		c.JSON(http.StatusCreated, gin.H{"roomId": string(roomID)})
	})

	upload := r.Group("/upload")
	upload.POST("/get-presigned-url", func(c *gin.Context) {
		var body struct {
			RoomID   string `json:"roomId" binding:"required"`
			Filename string `json:"filename" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, deps.Blobs.MintUploadURL(body.RoomID, body.Filename))
	})

	upload.POST("/complete", func(c *gin.Context) {
		var body struct {
			RoomID string `json:"roomId" binding:"required"`
			URL    string `json:"url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, ok := deps.Registry.GetRoom(domain.RoomID(body.RoomID))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		if err := room.AddAudioSource(body.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.PUT("/blob/*key", func(c *gin.Context) {
		key := c.Param("key")
		if len(key) > 0 && key[0] == '/' {
			key = key[1:]
		}
		expires, err := strconv.ParseInt(c.Query("exp"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing exp"})
			return
		}
		sig := c.Query("sig")
		if err := deps.Blobs.VerifyUpload(key, expires, sig); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := deps.Blobs.Write(key, body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/ws", deps.WSController.Handle)

	return r
}
