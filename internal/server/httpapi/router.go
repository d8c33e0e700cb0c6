package httpapi

import (
	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with middleware and all sync routes.
func NewRouter(secretKey []byte, h *Handler, logger logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/sync/v1")
	v1.Use(Auth(secretKey))
	{
		v1.POST("/push", h.Push)
		v1.POST("/pull", h.Pull)
		v1.POST("/attachments/:id/upload-url", h.UploadURL)
		v1.GET("/attachments/:id/download-url", h.DownloadURL)
	}
	return r
}
