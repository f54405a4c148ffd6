package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/api/middleware"
)

// TokenHeader carries the shared webhook token.
const TokenHeader = "X-Webhook-Token"

// Webhook receives gateway callbacks.
type Webhook struct {
	router      *Router
	sender      Sender  // optional
	dedup       Deduper // optional
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewWebhook(router *Router, sender Sender, sendTimeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Webhook{router: router, sender: sender, sendTimeout: sendTimeout, logger: logger}
}

// SetDeduper drops gateway redeliveries of the same message id.
func (w *Webhook) SetDeduper(d Deduper) { w.dedup = d }

// inbound accepts the field names used by the common gateways.
type inbound struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Text      string `json:"text"`
}

func (in inbound) messageID() string {
	if in.ID != "" {
		return in.ID
	}
	return in.MessageID
}

func (in inbound) normalize() Message {
	m := Message{From: in.From, Text: in.Message}
	if m.From == "" {
		m.From = in.Sender
	}
	if m.Text == "" {
		m.Text = in.Text
	}
	return m
}

// RegisterRoutes mounts POST /webhook/whatsapp behind the shared token.
func (w *Webhook) RegisterRoutes(r gin.IRouter, token string) {
	r.POST("/webhook/whatsapp", middleware.SharedToken(TokenHeader, token, w.logger), w.Handle)
}

func (w *Webhook) Handle(c *gin.Context) {
	var in inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	msg := in.normalize()
	if strings.TrimSpace(msg.From) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender is required"})
		return
	}

	if id := in.messageID(); w.dedup != nil && id != "" {
		first, err := w.dedup.First(c.Request.Context(), id)
		if err != nil {
			w.logger.Warn("chat dedup failed, handling message anyway", zap.String("message_id", id), zap.Error(err))
		} else if !first {
			c.JSON(http.StatusOK, gin.H{"duplicate": true})
			return
		}
	}

	reply, err := w.router.Handle(c.Request.Context(), msg)
	if err != nil {
		w.logger.Warn("chat command failed",
			zap.String("from", Requester(msg.From)),
			zap.String("text", msg.Text),
			zap.Error(err),
		)
	}

	sent := false
	if w.sender != nil && reply != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), w.sendTimeout)
		if err := w.sender.Send(ctx, msg.From, reply); err != nil {
			w.logger.Warn("chat reply not delivered", zap.String("to", Requester(msg.From)), zap.Error(err))
		} else {
			sent = true
		}
		cancel()
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "sent": sent})
}
