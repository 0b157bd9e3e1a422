package payment

import (
	"context"
	"errors"
)

// Gateway-level outcomes. The ledger maps these onto its user-facing error
// taxonomy; the client itself keeps no local state.
var (
	// ErrDeclined means the payer's method was refused. Fatal for the booking.
	ErrDeclined = errors.New("gateway declined authorization")
	// ErrAlreadyCaptured means funds for the hold were already settled.
	ErrAlreadyCaptured = errors.New("authorization already captured")
	// ErrAlreadyCanceled means the hold was already released.
	ErrAlreadyCanceled = errors.New("authorization already canceled")
	// ErrUnavailable is a transport-level failure (timeout, 5xx). The caller
	// must not retry inline; the out-of-band sweep owns durable retry.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrHoldNotFound means no hold exists for the given reference.
	ErrHoldNotFound = errors.New("authorization not found")
)

// Normalized hold states reported by Retrieve/LookupByBookingID.
const (
	HoldAwaitingPayment = "AWAITING_PAYMENT" // created, payer has not completed authentication
	HoldAuthorized      = "AUTHORIZED"       // funds reserved, capturable
	HoldCaptured        = "CAPTURED"         // funds settled
	HoldCanceled        = "CANCELED"         // hold released
)

// AuthorizationParams describes a two-phase hold: funds are reserved in
// manual-capture mode and never move until Capture. The idempotency key is the
// booking id, so a retried Authorize after a lost response cannot create a
// second hold.
type AuthorizationParams struct {
	AmountCents         int64
	Currency            string
	DestinationAccount  string
	ApplicationFeeCents int64
	IdempotencyKey      string
	Metadata            map[string]string
}

// Authorization is the result of a successful hold.
type Authorization struct {
	Ref          string // Provider reference for capture/cancel
	ClientSecret string // Handle the payer's client uses to complete authentication
}

// HoldState is the provider's current view of a hold, used by reconciliation.
type HoldState struct {
	Ref    string
	Status string // One of the Hold* constants
}

// PaymentGateway is the idempotent wrapper over the external
// authorize/capture/cancel API. Implementations are stateless; all booking
// state lives in the ledger.
type PaymentGateway interface {
	Authorize(ctx context.Context, params AuthorizationParams) (*Authorization, error)
	Capture(ctx context.Context, ref string) error
	Cancel(ctx context.Context, ref string) error
	Retrieve(ctx context.Context, ref string) (*HoldState, error)
	// LookupByBookingID finds the hold created for a booking when the local
	// record never received the reference (lost response). Returns
	// ErrHoldNotFound when the provider has no hold for the booking.
	LookupByBookingID(ctx context.Context, bookingID string) (*HoldState, error)
}
