package handler

import (
	"errors"
	"strconv"
	"time"

	"pairelay/internal/model"
	"pairelay/internal/repository"
	"pairelay/internal/service"
	"pairelay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Handler struct {
	messages *service.MessageService
	system   string
	version  string
	logger   zerolog.Logger
}

func NewHandler(messages *service.MessageService, system, version string, logger zerolog.Logger) *Handler {
	return &Handler{
		messages: messages,
		system:   system,
		version:  version,
		logger:   logger.With().Str("component", "handler").Logger(),
	}
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "online",
		"system":  h.system,
		"version": h.version,
	})
}

// InboxRequest is the body accepted from the remote peer.
type InboxRequest struct {
	Sender      string `json:"sender" binding:"required"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type" binding:"omitempty,oneof=text task query"`
	Priority    string `json:"priority" binding:"omitempty,oneof=normal high urgent"`
	ContextID   string `json:"context_id"`
}

// ReceiveMessage stores an inbound message.
// POST /inbox
func (h *Handler) ReceiveMessage(c *gin.Context) {
	var req InboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	msg, err := h.messages.Receive(c.Request.Context(), service.ReceiveRequest{
		Sender:      req.Sender,
		Content:     req.Content,
		Priority:    model.Priority(req.Priority),
		MessageType: model.MessageType(req.MessageType),
		ContextID:   req.ContextID,
	})
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":    "received",
		"id":        msg.ID,
		"timestamp": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// OutboxRequest is the body accepted from local callers to queue a send.
type OutboxRequest struct {
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type" binding:"omitempty,oneof=text task query"`
	Priority    string `json:"priority" binding:"omitempty,oneof=normal high urgent"`
	ContextID   string `json:"context_id"`
}

// SendMessage queues an outbound message and returns its pending
// acknowledgment. Delivery outcome is visible through GET /messages.
// POST /outbox
func (h *Handler) SendMessage(c *gin.Context) {
	var req OutboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), service.SendRequest{
		Content:     req.Content,
		Priority:    model.Priority(req.Priority),
		MessageType: model.MessageType(req.MessageType),
		ContextID:   req.ContextID,
	})
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":    "pending",
		"id":        msg.ID,
		"timestamp": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// GetHistory lists stored messages.
// GET /messages?limit=&sender=&direction=
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	direction := model.Direction(c.Query("direction"))
	switch direction {
	case "", model.DirectionInbox, model.DirectionOutbox:
	default:
		response.BadRequest(c, "direction must be inbox or outbox")
		return
	}

	messages, err := h.messages.History(c.Request.Context(), limit, c.Query("sender"), direction)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	c.JSON(200, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handler) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrDuplicateID):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error().Err(err).Msg("store operation failed")
		response.ServerError(c, "storage error")
	}
}
