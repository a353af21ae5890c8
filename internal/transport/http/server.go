package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pipechat/pipechat-server/internal/config"
	"github.com/pipechat/pipechat-server/internal/core"
)

const readHeaderTimeout = 5 * time.Second

// StatsResponse is the ops snapshot of the session table.
type StatsResponse struct {
	Sessions int `json:"sessions"`
	Rooms    int `json:"rooms"`
}

// NewServer builds the ops HTTP server exposing health and stats endpoints.
func NewServer(table *core.Table, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())
	router.GET("/health", healthHandler)
	router.GET("/stats", statsHandler(table))

	return &stdhttp.Server{
		Addr:              cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func statsHandler(table *core.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, rooms := table.Stats()
		c.JSON(stdhttp.StatusOK, StatsResponse{Sessions: sessions, Rooms: rooms})
	}
}
