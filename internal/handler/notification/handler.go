// Package notification exposes a user's notifications over HTTP, including
// the server-sent event stream used for live pushes.
package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/contract-admin/internal/handler"
	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/middleware"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/service/notification"
	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
	"github.com/jwalitptl/contract-admin/pkg/logger"
)

const DefaultHeartbeat = 25 * time.Second

type Broadcaster interface {
	EnqueueBroadcast(ctx context.Context, payload model.BroadcastPayload) error
}

type AccessChecker interface {
	CanReceive(ctx context.Context, userID, contractID int64) bool
}

type Config struct {
	Heartbeat  time.Duration
	BufferSize int
}

type Handler struct {
	service     notification.Service
	registry    *live.Registry
	broadcaster Broadcaster
	access      AccessChecker
	cfg         Config
	logger      *logger.Logger
}

func NewHandler(service notification.Service, registry *live.Registry, broadcaster Broadcaster, access AccessChecker, cfg Config, log *logger.Logger) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	return &Handler{
		service:     service,
		registry:    registry,
		broadcaster: broadcaster,
		access:      access,
		cfg:         cfg,
		logger:      log.With("notification_handler"),
	}
}

// RegisterRoutes mounts the user routes on r, which must already be
// authenticated, and the broadcast route on admin.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PATCH("/read-all", h.MarkAllRead)
		notifications.PATCH("/:id/read", h.MarkRead)
		notifications.DELETE("", h.Delete)
		notifications.GET("/stream", h.Stream)
		notifications.POST("/stream/register", h.RegisterStream)
	}
	r.GET("/contracts/:id/access", h.ContractAccess)

	if admin != nil {
		admin.POST("/notifications/broadcast", h.Broadcast)
	}
}

func (h *Handler) List(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return
	}

	page, err := h.service.List(c.Request.Context(), middleware.UserID(c), p.Page, p.Limit)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"unreadCount": count}))
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), middleware.UserID(c), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id}))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	updated, err := h.service.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"updated": updated}))
}

// Delete clears the caller's notifications, or only those older than
// older_than_days when given.
func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	var (
		deleted int64
		err     error
	)
	if raw := c.Query("older_than_days"); raw != "" {
		days, convErr := strconv.Atoi(raw)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("older_than_days must be an integer"))
			return
		}
		deleted, err = h.service.DeleteOlderThan(ctx, userID, days)
	} else {
		deleted, err = h.service.DeleteAll(ctx, userID)
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": deleted}))
}

// Stream holds an SSE response open. The first event names the connection;
// the client binds it to its user through RegisterStream.
func (h *Handler) Stream(c *gin.Context) {
	conn := live.NewStreamConn(h.cfg.BufferSize)
	h.registry.Track(conn, middleware.UserID(c))
	defer func() {
		h.registry.Unregister(conn)
		conn.Close()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(live.EventConnected, gin.H{"connection_id": conn.ID()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-conn.Done():
			return false
		case ev := <-conn.Events():
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-heartbeat.C:
			_, err := fmt.Fprint(w, ": ping\n\n")
			return err == nil
		}
	})
	h.logger.Debug("Stream closed", "connection_id", conn.ID(), "user_id", middleware.UserID(c))
}

type registerRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	ConnectionID string `json:"connection_id" binding:"required"`
}

func (h *Handler) RegisterStream(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.UserID != middleware.UserID(c) {
		handler.Error(c, apperrors.Forbidden("cannot register a stream for another user"))
		return
	}

	if _, err := h.registry.Claim(req.ConnectionID, req.UserID); err != nil {
		if errors.Is(err, live.ErrNotOpener) {
			handler.Error(c, apperrors.Forbidden("connection was opened by another user"))
			return
		}
		handler.Error(c, apperrors.NotFound("connection", err))
		return
	}

	h.logger.Info("Stream registered", "user_id", req.UserID, "connection_id", req.ConnectionID)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"connection_id": req.ConnectionID}))
}

func (h *Handler) ContractAccess(c *gin.Context) {
	contractID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || contractID <= 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid contract ID"))
		return
	}

	ok := h.access.CanReceive(c.Request.Context(), middleware.UserID(c), contractID)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"canReceive": ok}))
}

type broadcastRequest struct {
	Title    string `json:"title" binding:"required,max=255"`
	Message  string `json:"message" binding:"required,max=4096"`
	Audience string `json:"audience" binding:"required,oneof=all admins"`
}

func (h *Handler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	err := h.broadcaster.EnqueueBroadcast(c.Request.Context(), model.BroadcastPayload{
		Audience: req.Audience,
		Title:    req.Title,
		Message:  req.Message,
		ActorID:  middleware.UserID(c),
	})
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"audience": req.Audience}))
}
