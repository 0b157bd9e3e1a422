package models

import "time"

// CoachProfile is the slice of the coach record this service reads and writes.
// Profile management itself lives elsewhere; the booking core only needs the
// payout destination and the hourly rate.
type CoachProfile struct {
	UserID            string    `bson:"user_id" json:"user_id"`
	PayoutAccountID   string    `bson:"payout_account_id,omitempty" json:"payout_account_id,omitempty"` // Gateway connected-account id; empty until onboarding completes
	PricePerHourCents int64     `bson:"price_per_hour_cents" json:"price_per_hour_cents"`
	Email             string    `bson:"email" json:"email"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}
