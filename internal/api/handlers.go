// Package api exposes the HTTP surface: inbound chat events, feedback
// collection, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamassist/internal/manager"
	"teamassist/internal/metrics"
	"teamassist/internal/models"
	"teamassist/internal/platform"
	"teamassist/internal/storage"
	"teamassist/internal/worker"
)

// EventDispatcher is the event-processing entry point the HTTP layer targets.
type EventDispatcher interface {
	Submit(ctx context.Context, evt platform.InboundEvent) (manager.Result, error)
}

// Handler wires HTTP routes to the dispatcher and the store.
type Handler struct {
	store      *storage.Store
	dispatcher EventDispatcher
	transport  platform.Transport
	logger     *zap.Logger
}

// NewHandler constructs a Handler. transport may be nil; replies are then
// returned in the HTTP response only, with a generated activity id.
func NewHandler(store *storage.Store, dispatcher EventDispatcher, transport platform.Transport, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, dispatcher: dispatcher, transport: transport, logger: logger}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/events", h.handleEvent)
	api.POST("/feedback", h.submitFeedback)
	api.GET("/feedback/summary", h.feedbackSummary)
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

type eventRequest struct {
	ConversationID   string               `json:"conversation_id"`
	ConversationType string               `json:"conversation_type"`
	SenderID         string               `json:"sender_id"`
	SenderName       string               `json:"sender_name"`
	Text             string               `json:"text"`
	Timezone         string               `json:"timezone"`
	ActivityID       string               `json:"activity_id"`
	Participants     []models.Participant `json:"participants"`
}

type eventResponse struct {
	Reply               string              `json:"reply"`
	DelegatedCapability string              `json:"delegated_capability,omitempty"`
	Citations           []models.Citation   `json:"citations,omitempty"`
	Cards               []models.QuotedCard `json:"cards,omitempty"`
	ActivityID          string              `json:"activity_id"`
}

func (h *Handler) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id and text are required"})
		return
	}
	convType := req.ConversationType
	if convType == "" {
		convType = platform.ConversationPersonal
	}

	evt := platform.InboundEvent{
		ConversationID:   req.ConversationID,
		ConversationType: convType,
		SenderID:         req.SenderID,
		SenderName:       req.SenderName,
		Text:             req.Text,
		Timezone:         req.Timezone,
		ActivityID:       req.ActivityID,
		Participants:     req.Participants,
	}

	res, err := h.dispatcher.Submit(c.Request.Context(), evt)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		h.logger.Error("event processing failed",
			zap.String("conversation_id", evt.ConversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	activityID := h.deliver(c, evt, res)
	if activityID != "" {
		if err := h.store.InitializeFeedbackRecord(c.Request.Context(), activityID, res.DelegatedCapability); err != nil {
			h.logger.Warn("feedback record init failed",
				zap.String("activity_id", activityID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, eventResponse{
		Reply:               res.Response,
		DelegatedCapability: res.DelegatedCapability,
		Citations:           res.Citations,
		Cards:               res.Cards,
		ActivityID:          activityID,
	})
}

// deliver sends the reply through the platform transport when one is
// configured, and returns the activity id identifying the outbound message.
func (h *Handler) deliver(c *gin.Context, evt platform.InboundEvent, res manager.Result) string {
	if h.transport == nil {
		return uuid.NewString()
	}
	activityID, err := h.transport.Send(c.Request.Context(), platform.OutboundMessage{
		ConversationID: evt.ConversationID,
		Text:           res.Response,
		Citations:      res.Citations,
		Cards:          res.Cards,
	})
	if err != nil {
		h.logger.Error("outbound delivery failed",
			zap.String("conversation_id", evt.ConversationID), zap.Error(err))
		return ""
	}
	return activityID
}

type feedbackRequest struct {
	MessageID string `json:"message_id"`
	Reaction  string `json:"reaction"`
	Comment   string `json:"comment"`
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.MessageID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}
	if req.Reaction != models.ReactionLike && req.Reaction != models.ReactionDislike {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reaction must be like or dislike"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.InitializeFeedbackRecord(ctx, req.MessageID, ""); err != nil {
		h.logger.Error("feedback init failed", zap.String("message_id", req.MessageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storing feedback failed"})
		return
	}
	if !h.store.UpdateFeedback(ctx, req.MessageID, req.Reaction, req.Comment) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storing feedback failed"})
		return
	}
	metrics.FeedbackReactions.WithLabelValues(req.Reaction).Inc()
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *Handler) feedbackSummary(c *gin.Context) {
	summary := h.store.SummarizeFeedback(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
