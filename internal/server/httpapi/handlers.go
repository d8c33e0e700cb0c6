// Package httpapi exposes the sync protocol over HTTP using gin. All
// endpoints speak JSON and require a bearer token except /healthz.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/server/services"
	"github.com/akarpov87/taskhive/internal/syncmodel"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	sync        *services.SyncService
	attachments *services.AttachmentService
}

func NewHandler(sync *services.SyncService, attachments *services.AttachmentService) *Handler {
	return &Handler{sync: sync, attachments: attachments}
}

func (h *Handler) Push(c *gin.Context) {
	userID := UserIDFromContext(c)

	var req syncmodel.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	resp, err := h.sync.Push(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Pull(c *gin.Context) {
	userID := UserIDFromContext(c)

	var req syncmodel.PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	resp, err := h.sync.Pull(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UploadURL(c *gin.Context) {
	userID := UserIDFromContext(c)

	url, err := h.attachments.UploadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) DownloadURL(c *gin.Context) {
	userID := UserIDFromContext(c)

	url, err := h.attachments.DownloadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, common.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
