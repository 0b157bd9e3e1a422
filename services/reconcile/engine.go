package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	auditRepo "findmycoach/database/repository/audit"
	bookingRepo "findmycoach/database/repository/booking"
	"findmycoach/models"
	"findmycoach/utils"
)

// EventType is the normalized class of an inbound provider notification.
type EventType string

const (
	EventAuthorizationSucceeded EventType = "authorization_succeeded"
	EventAuthorizationFailed    EventType = "authorization_failed"
	EventCaptureSucceeded       EventType = "capture_succeeded"
	EventCaptureFailed          EventType = "capture_failed"
	EventCancellationConfirmed  EventType = "cancellation_confirmed"
	EventPayoutCreated          EventType = "payout_created"
)

// Event is a validated provider notification, already authenticated and
// deduplicated by the webhook receiver.
type Event struct {
	Type            EventType
	BookingID       string
	Ref             string // authorization reference carried by the event object
	PayoutRef       string // set only for payout events
	ProviderEventID string
}

// transitionTable maps (event type, current status) to the next status. Pairs
// not present resolve to a no-op; delivery order is not guaranteed, so a stale
// event against an already-resolved booking is normal and never an error.
var transitionTable = map[EventType]map[string]string{
	EventAuthorizationSucceeded: {
		models.BookingStatusPending: models.BookingStatusConfirmed,
	},
	EventAuthorizationFailed: {
		models.BookingStatusPending: models.BookingStatusCanceled,
	},
	EventCaptureSucceeded: {
		models.BookingStatusConfirmed: models.BookingStatusCompleted,
	},
	EventCancellationConfirmed: {
		models.BookingStatusPending:   models.BookingStatusCanceled,
		models.BookingStatusConfirmed: models.BookingStatusCanceled,
	},
	// EventCaptureFailed and EventPayoutCreated never change status.
}

// Engine applies validated events to the ledger through the guarded transition
// primitive. It is idempotent and order-tolerant: a precondition mismatch is a
// logged no-op, never a failure.
type Engine struct {
	Repo   bookingRepo.BookingRepository
	Audit  auditRepo.AuditRepository
	Cache  *redis.Client // booking read cache, invalidated on every write
	Logger *zap.Logger
}

func NewEngine(repo bookingRepo.BookingRepository, audit auditRepo.AuditRepository, cache *redis.Client, logger *zap.Logger) *Engine {
	return &Engine{Repo: repo, Audit: audit, Cache: cache, Logger: logger}
}

// Apply reconciles one event against the booking's current state. It returns
// an error only for durable-processing failures (store unavailable); business
// mismatches all resolve to audited no-ops so the webhook can be acknowledged.
func (e *Engine) Apply(ctx context.Context, ev Event) error {
	bk, err := e.Repo.GetByID(ctx, ev.BookingID)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			// An authorization without a local record should be impossible
			// given write-ahead creation; record the anomaly and move on.
			e.noop(ctx, ev, "", "booking not found")
			return nil
		}
		return fmt.Errorf("reconcile lookup failed: %w", err)
	}

	if ev.Type == EventPayoutCreated {
		return e.attachPayout(ctx, ev, bk)
	}
	if ev.Type == EventCaptureFailed {
		// Surfaced via audit only; operators follow up out of band.
		e.appendAudit(ctx, models.AuditCaptureFailed, ev, map[string]any{"status": bk.Status})
		return nil
	}

	next, ok := transitionTable[ev.Type][bk.Status]
	if !ok {
		e.noop(ctx, ev, bk.Status, "no transition for event in current status")
		return nil
	}

	set := bookingRepo.TransitionSet{Status: next}
	if ev.Type == EventAuthorizationSucceeded {
		set.AuthorizationRef = ev.Ref
	}
	if _, err := e.Repo.Transition(ctx, bk.ID, bk.Status, bk.Version, set); err != nil {
		if errors.Is(err, bookingRepo.ErrConflict) {
			// A user action or another event won the race; the table's
			// guarded write rejecting a stale precondition is expected.
			e.noop(ctx, ev, bk.Status, "guarded transition rejected")
			return nil
		}
		return fmt.Errorf("reconcile transition failed: %w", err)
	}

	e.invalidateCache(ctx, bk.ID)
	e.appendAudit(ctx, auditTypeFor(next), ev, map[string]any{"from": bk.Status, "to": next})
	return nil
}

func (e *Engine) attachPayout(ctx context.Context, ev Event, bk *models.Booking) error {
	if bk.Status != models.BookingStatusCompleted {
		e.noop(ctx, ev, bk.Status, "payout event for non-completed booking")
		return nil
	}
	attached, err := e.Repo.AttachPayoutRef(ctx, bk.ID, ev.PayoutRef)
	if err != nil {
		return fmt.Errorf("attach payout ref failed: %w", err)
	}
	if !attached {
		e.noop(ctx, ev, bk.Status, "payout ref already attached")
		return nil
	}
	e.invalidateCache(ctx, bk.ID)
	e.appendAudit(ctx, models.AuditBookingPayout, ev, map[string]any{"payoutRef": ev.PayoutRef})
	return nil
}

func (e *Engine) invalidateCache(ctx context.Context, bookingID string) {
	if e.Cache != nil {
		e.Cache.Del(ctx, utils.BookingCacheKey(bookingID))
	}
}

func (e *Engine) noop(ctx context.Context, ev Event, status, reason string) {
	e.Logger.Info("reconcile no-op",
		zap.String("event", string(ev.Type)),
		zap.String("bookingId", ev.BookingID),
		zap.String("status", status),
		zap.String("reason", reason))
	e.appendAudit(ctx, models.AuditReconcileNoop, ev, map[string]any{"status": status, "reason": reason})
}

func (e *Engine) appendAudit(ctx context.Context, auditType string, ev Event, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["providerEventId"] = ev.ProviderEventID
	payload["eventType"] = string(ev.Type)
	event := &models.AuditEvent{
		ID:       uuid.New().String(),
		Type:     auditType,
		Entity:   "Booking",
		EntityID: ev.BookingID,
		Payload:  payload,
	}
	if err := e.Audit.Append(ctx, event); err != nil {
		e.Logger.Error("audit append failed", zap.String("type", auditType), zap.String("bookingId", ev.BookingID), zap.Error(err))
	}
}

func auditTypeFor(status string) string {
	switch status {
	case models.BookingStatusConfirmed:
		return models.AuditBookingConfirmed
	case models.BookingStatusCompleted:
		return models.AuditBookingCompleted
	case models.BookingStatusCanceled:
		return models.AuditBookingCanceled
	}
	return models.AuditReconcileNoop
}
