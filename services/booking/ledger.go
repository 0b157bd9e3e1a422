package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	auditRepo "findmycoach/database/repository/audit"
	bookingRepo "findmycoach/database/repository/booking"
	coachRepo "findmycoach/database/repository/coach"
	"findmycoach/models"
	"findmycoach/services/payment"
	"findmycoach/utils"
)

const gatewayCallTimeout = 30 * time.Second

// CreateBookingRequest carries the validated user input for a new booking.
type CreateBookingRequest struct {
	PlayerID string
	CoachID  string
	GroupID  string
	Start    time.Time
	End      time.Time
	Price    string // decimal string, e.g. "100.00"
	Currency string
	Notes    string
}

// CreateBookingResult is the booking plus the handle the payer's client needs
// to complete authentication of the hold.
type CreateBookingResult struct {
	Booking      *models.Booking
	ClientSecret string
}

// BookingLedger is the authoritative writer of booking status. Every mutation
// funnels through the repository's guarded transition; no other component
// writes status.
type BookingLedger interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error)
	RequestCapture(ctx context.Context, bookingID, actorID string) (*models.Booking, error)
	RequestCancel(ctx context.Context, bookingID, actorID string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]models.Booking, error)
}

// DefaultBookingLedger implements BookingLedger.
type DefaultBookingLedger struct {
	Repo       bookingRepo.BookingRepository
	Coaches    coachRepo.CoachDirectory
	Gateway    payment.PaymentGateway
	Audit      auditRepo.AuditRepository
	Cache      *redis.Client // optional read cache
	FeePercent float64
	Logger     *zap.Logger
}

// CreateBooking inserts the PENDING row before any external call (write-ahead),
// then asks the gateway for a manual-capture hold keyed by the booking id. The
// insert-first ordering guarantees no authorization can exist without a local
// record, which is what makes the reconciliation sweep sound.
func (l *DefaultBookingLedger) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	amountCents, err := ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	coach, err := l.Coaches.GetByUserID(ctx, req.CoachID)
	if err != nil {
		if errors.Is(err, coachRepo.ErrNotFound) {
			return nil, NewLedgerError(CodeNotFound, "coach not found")
		}
		return nil, fmt.Errorf("coach lookup failed: %w", err)
	}
	if coach.PayoutAccountID == "" {
		return nil, NewLedgerError(CodeCoachNotPayable, "coach is not ready to accept payments yet")
	}

	// Scheduling conflict check against bookings that hold or held funds.
	busy, err := l.Repo.CountOverlapping(ctx, req.CoachID, req.Start, req.End,
		[]string{models.BookingStatusConfirmed, models.BookingStatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("overlap check failed: %w", err)
	}
	if busy > 0 {
		return nil, NewLedgerError(CodeConflict, "requested window conflicts with an existing booking")
	}

	now := time.Now().UTC()
	bk := &models.Booking{
		ID:          uuid.New().String(),
		PlayerID:    req.PlayerID,
		CoachID:     req.CoachID,
		GroupID:     req.GroupID,
		Start:       req.Start,
		End:         req.End,
		AmountCents: amountCents,
		Currency:    req.Currency,
		Status:      models.BookingStatusPending,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if err := l.Repo.Create(ctx, bk); err != nil {
		return nil, fmt.Errorf("write-ahead insert failed: %w", err)
	}
	l.appendAudit(ctx, models.AuditBookingCreated, req.PlayerID, bk.ID, map[string]any{
		"coachId":  req.CoachID,
		"start":    req.Start,
		"end":      req.End,
		"amount":   amountCents,
		"currency": req.Currency,
	})

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	auth, err := l.Gateway.Authorize(gwCtx, payment.AuthorizationParams{
		AmountCents:         amountCents,
		Currency:            req.Currency,
		DestinationAccount:  coach.PayoutAccountID,
		ApplicationFeeCents: PlatformFeeCents(amountCents, l.FeePercent),
		IdempotencyKey:      bk.ID,
		Metadata:            map[string]string{"bookingId": bk.ID},
	})

	switch {
	case err == nil:
		updated, terr := l.Repo.Transition(ctx, bk.ID, models.BookingStatusPending, bk.Version,
			bookingRepo.TransitionSet{Status: models.BookingStatusConfirmed, AuthorizationRef: auth.Ref})
		if terr != nil {
			// A racing webhook may have confirmed first; that is the same outcome.
			updated, terr = l.resolveRace(ctx, bk.ID, terr, models.BookingStatusConfirmed)
			if terr != nil {
				return nil, terr
			}
		} else {
			l.appendAudit(ctx, models.AuditBookingConfirmed, req.PlayerID, bk.ID, map[string]any{"authorizationRef": auth.Ref})
		}
		l.invalidateCache(ctx, bk.ID)
		return &CreateBookingResult{Booking: updated, ClientSecret: auth.ClientSecret}, nil

	case errors.Is(err, payment.ErrDeclined):
		if _, terr := l.Repo.Transition(ctx, bk.ID, models.BookingStatusPending, bk.Version,
			bookingRepo.TransitionSet{Status: models.BookingStatusCanceled}); terr != nil {
			// A racing failure webhook may have canceled and audited already;
			// only a non-conflict failure is worth logging, and neither case
			// gets a second audit entry.
			if !errors.Is(terr, bookingRepo.ErrConflict) {
				l.Logger.Error("failed to cancel declined booking", zap.String("bookingId", bk.ID), zap.Error(terr))
			}
		} else {
			l.appendAudit(ctx, models.AuditBookingCanceled, req.PlayerID, bk.ID, map[string]any{"reason": "authorization declined"})
		}
		l.invalidateCache(ctx, bk.ID)
		return nil, NewLedgerError(CodeGatewayDeclined, "payment authorization was declined")

	case errors.Is(err, payment.ErrUnavailable):
		// Leave the booking PENDING. No inline retry: a duplicate authorize
		// attempt inside this request could double-hold; the out-of-band
		// sweep re-queries gateway state before acting.
		l.Logger.Warn("gateway unavailable, booking left pending", zap.String("bookingId", bk.ID))
		return nil, NewLedgerError(CodeGatewayUnavailable, "payment gateway unavailable, booking will be reconciled")

	default:
		l.Logger.Error("authorize failed", zap.String("bookingId", bk.ID), zap.Error(err))
		return nil, fmt.Errorf("authorize failed: %w", err)
	}
}

// RequestCapture settles the hold for a CONFIRMED booking. A gateway report
// that the hold was already captured or already canceled is a fatal business
// conflict, never silently resolved into a transition.
func (l *DefaultBookingLedger) RequestCapture(ctx context.Context, bookingID, actorID string) (*models.Booking, error) {
	bk, err := l.getForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && actorID != bk.CoachID {
		return nil, NewLedgerError(CodeUnauthorized, "only the coach may capture a booking")
	}
	if bk.Status != models.BookingStatusConfirmed {
		switch bk.Status {
		case models.BookingStatusCompleted:
			return nil, NewLedgerError(CodeAlreadyCaptured, "booking is already completed")
		case models.BookingStatusCanceled:
			return nil, NewLedgerError(CodeAlreadyCanceled, "booking is already canceled")
		default:
			return nil, NewLedgerError(CodeConflict, "booking is not confirmed")
		}
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	if err := l.Gateway.Capture(gwCtx, bk.AuthorizationRef); err != nil {
		if mapped := mapGatewayError(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("capture failed: %w", err)
	}

	updated, terr := l.Repo.Transition(ctx, bk.ID, models.BookingStatusConfirmed, bk.Version,
		bookingRepo.TransitionSet{Status: models.BookingStatusCompleted})
	if terr != nil {
		// The capture webhook may have landed first; COMPLETED is still a win.
		updated, terr = l.resolveRace(ctx, bk.ID, terr, models.BookingStatusCompleted)
		if terr != nil {
			return nil, terr
		}
	} else {
		l.appendAudit(ctx, models.AuditBookingCompleted, actorID, bk.ID, map[string]any{"authorizationRef": bk.AuthorizationRef})
	}
	l.invalidateCache(ctx, bk.ID)
	return updated, nil
}

// RequestCancel releases the hold for a CONFIRMED booking, or cancels a
// PENDING booking locally (no authorization exists yet to release). A hold
// whose funds already moved can never be overridden into a cancellation.
func (l *DefaultBookingLedger) RequestCancel(ctx context.Context, bookingID, actorID string) (*models.Booking, error) {
	bk, err := l.getForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && actorID != bk.PlayerID && actorID != bk.CoachID {
		return nil, NewLedgerError(CodeUnauthorized, "only a booking party may cancel")
	}

	switch bk.Status {
	case models.BookingStatusPending:
		// No-authorization-yet cancel: purely local. If a hold does exist at
		// the gateway from a lost response, reconciliation will no-op against
		// the terminal status and the hold expires uncaptured.
	case models.BookingStatusConfirmed:
		gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
		defer cancel()
		if err := l.Gateway.Cancel(gwCtx, bk.AuthorizationRef); err != nil {
			if errors.Is(err, payment.ErrAlreadyCanceled) {
				// Hold already released; fall through and align local state.
			} else if mapped := mapGatewayError(err); mapped != nil {
				return nil, mapped
			} else {
				return nil, fmt.Errorf("cancel failed: %w", err)
			}
		}
	case models.BookingStatusCompleted:
		return nil, NewLedgerError(CodeAlreadyCaptured, "booking is already completed")
	case models.BookingStatusCanceled:
		return bk, nil
	}

	updated, terr := l.Repo.Transition(ctx, bk.ID, bk.Status, bk.Version,
		bookingRepo.TransitionSet{Status: models.BookingStatusCanceled})
	if terr != nil {
		updated, terr = l.resolveRace(ctx, bk.ID, terr, models.BookingStatusCanceled)
		if terr != nil {
			return nil, terr
		}
	} else {
		l.appendAudit(ctx, models.AuditBookingCanceled, actorID, bk.ID, map[string]any{"from": bk.Status})
	}
	l.invalidateCache(ctx, bk.ID)
	return updated, nil
}

// GetBooking reads through the cache.
func (l *DefaultBookingLedger) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	if l.Cache != nil {
		if data, err := l.Cache.Get(ctx, utils.BookingCacheKey(bookingID)).Result(); err == nil {
			var bk models.Booking
			if json.Unmarshal([]byte(data), &bk) == nil {
				return &bk, nil
			}
		}
	}
	bk, err := l.getForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if l.Cache != nil {
		if data, err := json.Marshal(bk); err == nil {
			l.Cache.Set(ctx, utils.BookingCacheKey(bk.ID), data, 5*time.Minute)
		}
	}
	return bk, nil
}

func (l *DefaultBookingLedger) ListBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return l.Repo.ListByParty(ctx, userID)
}

// resolveRace handles a Conflict from the guarded transition: someone else
// already resolved this booking. If the current status matches the outcome the
// caller wanted, the race loser treats it as success; otherwise the conflict
// is surfaced.
func (l *DefaultBookingLedger) resolveRace(ctx context.Context, bookingID string, terr error, wanted string) (*models.Booking, error) {
	if !errors.Is(terr, bookingRepo.ErrConflict) {
		return nil, fmt.Errorf("transition failed: %w", terr)
	}
	current, err := l.getForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status == wanted {
		l.Logger.Info("concurrent writer already applied transition",
			zap.String("bookingId", bookingID), zap.String("status", wanted))
		return current, nil
	}
	return nil, NewLedgerError(CodeConflict, fmt.Sprintf("booking was concurrently resolved to %s", current.Status))
}

func (l *DefaultBookingLedger) getForUpdate(ctx context.Context, bookingID string) (*models.Booking, error) {
	bk, err := l.Repo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return nil, NewLedgerError(CodeNotFound, "booking not found")
		}
		return nil, err
	}
	return bk, nil
}

func (l *DefaultBookingLedger) appendAudit(ctx context.Context, eventType, actorID, bookingID string, payload map[string]any) {
	event := &models.AuditEvent{
		ID:       uuid.New().String(),
		Type:     eventType,
		ActorID:  actorID,
		Entity:   "Booking",
		EntityID: bookingID,
		Payload:  payload,
	}
	if err := l.Audit.Append(ctx, event); err != nil {
		l.Logger.Error("audit append failed", zap.String("type", eventType), zap.String("bookingId", bookingID), zap.Error(err))
	}
}

func (l *DefaultBookingLedger) invalidateCache(ctx context.Context, bookingID string) {
	if l.Cache != nil {
		l.Cache.Del(ctx, utils.BookingCacheKey(bookingID))
	}
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, payment.ErrAlreadyCaptured):
		return NewLedgerError(CodeAlreadyCaptured, "authorization was already captured")
	case errors.Is(err, payment.ErrAlreadyCanceled):
		return NewLedgerError(CodeAlreadyCanceled, "authorization was already canceled")
	case errors.Is(err, payment.ErrUnavailable):
		return NewLedgerError(CodeGatewayUnavailable, "payment gateway unavailable")
	case errors.Is(err, payment.ErrDeclined):
		return NewLedgerError(CodeGatewayDeclined, "payment authorization was declined")
	}
	return nil
}

func validateCreateRequest(req CreateBookingRequest) error {
	if req.PlayerID == "" || req.CoachID == "" {
		return NewLedgerError(CodeValidation, "player and coach are required")
	}
	if len(req.Currency) != 3 {
		return NewLedgerError(CodeValidation, "currency must be a 3-letter code")
	}
	if !req.End.After(req.Start) {
		return NewLedgerError(CodeValidation, "booking window end must be after start")
	}
	return nil
}
