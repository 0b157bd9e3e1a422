package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	webhookRepo "findmycoach/database/repository/webhook"
	"findmycoach/services/reconcile"
)

const maxWebhookBody = 1 << 16

// WebhookHandler receives the provider's signed event notifications. The
// pipeline: verify signature over the raw payload, deduplicate by provider
// event id, then apply the event through the reconciliation engine. The dedup
// record and the ledger transition commit in one transaction so they can
// never diverge.
type WebhookHandler struct {
	Dedup  webhookRepo.WebhookRepository
	Engine *reconcile.Engine
	Cache  *redis.Client // fast-path duplicate check; Mongo stays authoritative
	Secret string
	Logger *zap.Logger
}

func NewWebhookHandler(dedup webhookRepo.WebhookRepository, engine *reconcile.Engine, cache *redis.Client, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Dedup: dedup, Engine: engine, Cache: cache, Secret: secret, Logger: logger}
}

// HandleStripeEvent is the POST /api/webhooks/stripe endpoint.
func (h *WebhookHandler) HandleStripeEvent(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.Secret)
	if err != nil {
		// Authenticity failure: reject outright, persist nothing.
		h.Logger.Warn("webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	if h.seenRecently(ctx, event.ID) {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	ev, ok := translate(event)
	if !ok {
		// Event types outside the reconciliation table are acknowledged
		// without a dedup record; there is nothing to apply.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	// Authoritative duplicate check before opening a transaction. A lookup
	// failure falls through: Record's unique index still blocks a replay.
	if seen, serr := h.Dedup.Seen(ctx, event.ID); serr == nil && seen {
		h.markSeen(ctx, event.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	err = h.Dedup.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := h.Dedup.Record(txCtx, event.ID, string(event.Type)); err != nil {
			return err
		}
		return h.Engine.Apply(txCtx, ev)
	})
	if errors.Is(err, webhookRepo.ErrDuplicateEvent) {
		h.markSeen(ctx, event.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}
	if err != nil {
		// Durable processing failed and the dedup record was rolled back;
		// answer retryable so the provider redelivers.
		h.Logger.Error("webhook processing failed", zap.String("eventId", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	h.markSeen(ctx, event.ID)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) seenRecently(ctx context.Context, eventID string) bool {
	if h.Cache == nil {
		return false
	}
	n, err := h.Cache.Exists(ctx, webhookCacheKey(eventID)).Result()
	return err == nil && n > 0
}

func (h *WebhookHandler) markSeen(ctx context.Context, eventID string) {
	if h.Cache != nil {
		h.Cache.Set(ctx, webhookCacheKey(eventID), 1, 24*time.Hour)
	}
}

func webhookCacheKey(eventID string) string {
	return "webhook:seen:" + eventID
}

// eventObject is the slice of the event payload this service reads: the
// provider object's id and the bookingId planted in its metadata at
// authorization time.
type eventObject struct {
	ID            string            `json:"id"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent string            `json:"payment_intent"`
}

// translate maps a provider event onto the engine's normalized event. Returns
// false for event types the reconciliation table does not know.
func translate(event stripe.Event) (reconcile.Event, bool) {
	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return reconcile.Event{}, false
	}
	bookingID := obj.Metadata["bookingId"]
	if bookingID == "" {
		return reconcile.Event{}, false
	}

	ev := reconcile.Event{
		BookingID:       bookingID,
		Ref:             obj.ID,
		ProviderEventID: event.ID,
	}
	switch event.Type {
	case "payment_intent.amount_capturable_updated":
		ev.Type = reconcile.EventAuthorizationSucceeded
	case "payment_intent.payment_failed":
		ev.Type = reconcile.EventAuthorizationFailed
	case "payment_intent.succeeded":
		ev.Type = reconcile.EventCaptureSucceeded
	case "charge.captured":
		ev.Type = reconcile.EventCaptureSucceeded
		ev.Ref = obj.PaymentIntent
	case "charge.failed":
		ev.Type = reconcile.EventCaptureFailed
		ev.Ref = obj.PaymentIntent
	case "payment_intent.canceled":
		ev.Type = reconcile.EventCancellationConfirmed
	case "transfer.created":
		ev.Type = reconcile.EventPayoutCreated
		ev.PayoutRef = obj.ID
		ev.Ref = ""
	default:
		return reconcile.Event{}, false
	}
	return ev, true
}
