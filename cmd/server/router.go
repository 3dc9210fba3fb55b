package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/excalisketch/sketch-relay/internal/relay"
)

func Routes(r *gin.Engine, hub *relay.Hub) {
	r.GET("/ws", hub.HandleWebSocket)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
