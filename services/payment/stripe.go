package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// StripeGateway implements PaymentGateway on Stripe PaymentIntents in
// manual-capture mode. The global stripe.Key is set once at startup.
type StripeGateway struct {
	logger *zap.Logger
}

func NewStripeGateway(logger *zap.Logger) *StripeGateway {
	return &StripeGateway{logger: logger}
}

func (g *StripeGateway) Authorize(ctx context.Context, p AuthorizationParams) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Params:               stripe.Params{Context: ctx},
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(p.Currency),
		ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
		CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes:   stripe.StringSlice([]string{"card"}),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(p.IdempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		g.logger.Warn("stripe authorize failed", zap.String("idempotencyKey", p.IdempotencyKey), zap.Error(err))
		return nil, g.mapError(err)
	}
	return &Authorization{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCaptureParams{Params: stripe.Params{Context: ctx}}
	if _, err := paymentintent.Capture(ref, params); err != nil {
		g.logger.Warn("stripe capture failed", zap.String("ref", ref), zap.Error(err))
		return g.mapStateError(ctx, ref, err)
	}
	return nil
}

func (g *StripeGateway) Cancel(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{Params: stripe.Params{Context: ctx}}
	if _, err := paymentintent.Cancel(ref, params); err != nil {
		g.logger.Warn("stripe cancel failed", zap.String("ref", ref), zap.Error(err))
		return g.mapStateError(ctx, ref, err)
	}
	return nil
}

func (g *StripeGateway) Retrieve(ctx context.Context, ref string) (*HoldState, error) {
	params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}
	pi, err := paymentintent.Get(ref, params)
	if err != nil {
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.HTTPStatusCode == 404 {
			return nil, ErrHoldNotFound
		}
		return nil, g.mapError(err)
	}
	return &HoldState{Ref: pi.ID, Status: normalizeIntentStatus(pi.Status)}, nil
}

// LookupByBookingID searches for the intent carrying the booking id in its
// metadata. Used by the sweep when the local row never got a reference.
func (g *StripeGateway) LookupByBookingID(ctx context.Context, bookingID string) (*HoldState, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['bookingId']:'%s'", bookingID),
		},
	}
	iter := paymentintent.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		return &HoldState{Ref: pi.ID, Status: normalizeIntentStatus(pi.Status)}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, g.mapError(err)
	}
	return nil, ErrHoldNotFound
}

// mapStateError resolves an unexpected-state failure on capture/cancel by
// asking the provider which terminal state the hold is actually in. The
// answer is surfaced as a fatal business conflict, never silently absorbed.
func (g *StripeGateway) mapStateError(ctx context.Context, ref string, err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		state, rerr := g.Retrieve(ctx, ref)
		if rerr != nil {
			return rerr
		}
		switch state.Status {
		case HoldCaptured:
			return ErrAlreadyCaptured
		case HoldCanceled:
			return ErrAlreadyCanceled
		}
	}
	return g.mapError(err)
}

func (g *StripeGateway) mapError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Type == stripe.ErrorTypeCard || sErr.Code == stripe.ErrorCodeCardDeclined {
			return ErrDeclined
		}
		if sErr.HTTPStatusCode >= 500 {
			return ErrUnavailable
		}
		return fmt.Errorf("stripe error %s: %w", sErr.Code, err)
	}
	// Anything that never produced a provider response is transport-level.
	return ErrUnavailable
}

func normalizeIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return HoldAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return HoldCaptured
	case stripe.PaymentIntentStatusCanceled:
		return HoldCanceled
	default:
		return HoldAwaitingPayment
	}
}
