package models

import "time"

// Booking statuses. Transitions are monotonic: PENDING may move to CONFIRMED or
// CANCELED, CONFIRMED may move to COMPLETED or CANCELED, and the terminal
// statuses (COMPLETED, CANCELED) never change again.
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCompleted = "COMPLETED"
	BookingStatusCanceled  = "CANCELED"
)

// Booking is the authoritative record of a paid, time-boxed session between a
// player and a coach. Status is only ever written through the ledger's guarded
// transition; price and currency are immutable after creation.
type Booking struct {
	ID               string    `bson:"id" json:"id"`                                                   // Unique booking identifier (UUID)
	PlayerID         string    `bson:"player_id" json:"player_id"`                                     // Paying player
	CoachID          string    `bson:"coach_id" json:"coach_id"`                                       // Coach being booked
	GroupID          string    `bson:"group_id,omitempty" json:"group_id,omitempty"`                   // Optional group session reference
	Start            time.Time `bson:"start" json:"start"`                                             // Session window start
	End              time.Time `bson:"end" json:"end"`                                                 // Session window end
	AmountCents      int64     `bson:"amount_cents" json:"amount_cents"`                               // Price in minor units, immutable
	Currency         string    `bson:"currency" json:"currency"`                                       // ISO currency code, immutable
	Status           string    `bson:"status" json:"status"`                                           // One of the BookingStatus* constants
	AuthorizationRef string    `bson:"authorization_ref,omitempty" json:"authorization_ref,omitempty"` // Gateway hold reference, set at most once
	PayoutRef        string    `bson:"payout_ref,omitempty" json:"payout_ref,omitempty"`               // Gateway payout reference, set after settlement
	Notes            string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
	Version          int64     `bson:"version" json:"version"` // Optimistic concurrency counter, incremented on every write
}

// TerminalStatus reports whether the status admits no further transitions.
func TerminalStatus(status string) bool {
	return status == BookingStatusCompleted || status == BookingStatusCanceled
}
