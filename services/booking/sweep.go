package booking

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	auditRepo "findmycoach/database/repository/audit"
	bookingRepo "findmycoach/database/repository/booking"
	"findmycoach/models"
	"findmycoach/services/payment"
	"findmycoach/utils"
)

// PendingSweeper is the out-of-band reconciler for bookings stuck in PENDING
// after a lost gateway response. It never retries blindly: it re-queries the
// gateway's view of the hold first, then applies the matching transition.
type PendingSweeper struct {
	Repo    bookingRepo.BookingRepository
	Gateway payment.PaymentGateway
	Audit   auditRepo.AuditRepository
	Cache   *redis.Client // booking read cache, invalidated on every write
	Logger  *zap.Logger
	MinAge  time.Duration // only PENDING rows older than this are swept
}

// Run performs one sweep pass.
func (s *PendingSweeper) Run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.MinAge)
	stale, err := s.Repo.FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		s.Logger.Error("pending sweep query failed", zap.Error(err))
		return
	}
	for i := range stale {
		s.sweepOne(ctx, &stale[i])
	}
}

func (s *PendingSweeper) sweepOne(ctx context.Context, bk *models.Booking) {
	state, err := s.Gateway.LookupByBookingID(ctx, bk.ID)
	switch {
	case errors.Is(err, payment.ErrHoldNotFound):
		// The authorize call never reached the gateway. Nothing can confirm
		// this booking anymore; close it out.
		s.transition(ctx, bk, bookingRepo.TransitionSet{Status: models.BookingStatusCanceled},
			models.AuditBookingCanceled, map[string]any{"reason": "no authorization at gateway"})
		return
	case err != nil:
		s.Logger.Warn("pending sweep gateway lookup failed", zap.String("bookingId", bk.ID), zap.Error(err))
		return
	}

	s.appendAudit(ctx, models.AuditSweepRequeried, bk.ID, map[string]any{"holdStatus": state.Status, "ref": state.Ref})

	switch state.Status {
	case payment.HoldAuthorized:
		s.transition(ctx, bk, bookingRepo.TransitionSet{Status: models.BookingStatusConfirmed, AuthorizationRef: state.Ref},
			models.AuditBookingConfirmed, map[string]any{"authorizationRef": state.Ref})
	case payment.HoldCaptured:
		// Funds already settled: confirm, then complete.
		updated := s.transition(ctx, bk, bookingRepo.TransitionSet{Status: models.BookingStatusConfirmed, AuthorizationRef: state.Ref},
			models.AuditBookingConfirmed, map[string]any{"authorizationRef": state.Ref})
		if updated != nil {
			s.transition(ctx, updated, bookingRepo.TransitionSet{Status: models.BookingStatusCompleted},
				models.AuditBookingCompleted, map[string]any{"authorizationRef": state.Ref})
		}
	case payment.HoldCanceled:
		s.transition(ctx, bk, bookingRepo.TransitionSet{Status: models.BookingStatusCanceled},
			models.AuditBookingCanceled, map[string]any{"reason": "hold canceled at gateway"})
	default:
		// Payer still authenticating; leave PENDING for a later pass.
	}
}

// transition applies one guarded step; a Conflict means another writer beat
// the sweep to it, which is a logged no-op.
func (s *PendingSweeper) transition(ctx context.Context, bk *models.Booking, set bookingRepo.TransitionSet, auditType string, payload map[string]any) *models.Booking {
	updated, err := s.Repo.Transition(ctx, bk.ID, bk.Status, bk.Version, set)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrConflict) {
			s.Logger.Info("pending sweep lost transition race", zap.String("bookingId", bk.ID), zap.String("target", set.Status))
			return nil
		}
		s.Logger.Error("pending sweep transition failed", zap.String("bookingId", bk.ID), zap.Error(err))
		return nil
	}
	if s.Cache != nil {
		s.Cache.Del(ctx, utils.BookingCacheKey(bk.ID))
	}
	s.appendAudit(ctx, auditType, bk.ID, payload)
	return updated
}

func (s *PendingSweeper) appendAudit(ctx context.Context, eventType, bookingID string, payload map[string]any) {
	event := &models.AuditEvent{
		ID:       uuid.New().String(),
		Type:     eventType,
		Entity:   "Booking",
		EntityID: bookingID,
		Payload:  payload,
	}
	if err := s.Audit.Append(ctx, event); err != nil {
		s.Logger.Error("audit append failed", zap.String("type", eventType), zap.String("bookingId", bookingID), zap.Error(err))
	}
}
