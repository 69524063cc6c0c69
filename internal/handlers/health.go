package handlers

import (
	"net/http"
	"time"

	"quill/internal/db"

	"github.com/gin-gonic/gin"
)

// Health GET /health
func Health(c *gin.Context) {
	status := http.StatusOK
	database := "ok"

	if err := db.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		database = "unavailable"
	}

	c.JSON(status, gin.H{
		"success": status == http.StatusOK,
		"msg":     database,
		"data": gin.H{
			"database": database,
			"time":     time.Now().UTC().Format(time.RFC3339),
		},
	})
}
