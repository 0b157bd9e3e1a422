package models

import "time"

// AuditEvent is an append-only record of a state-changing action or inbound
// event. The audit collection is never updated or deleted by this service.
type AuditEvent struct {
	ID        string         `bson:"id" json:"id"`
	Type      string         `bson:"type" json:"type"`                               // e.g. "booking.created", "booking.completed"
	ActorID   string         `bson:"actor_id,omitempty" json:"actor_id,omitempty"`   // Empty when the actor is the payment provider
	Entity    string         `bson:"entity" json:"entity"`                           // Referenced entity type, e.g. "Booking"
	EntityID  string         `bson:"entity_id" json:"entity_id"`
	Payload   map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// Audit event types emitted by the booking ledger and reconciliation engine.
const (
	AuditBookingCreated     = "booking.created"
	AuditBookingConfirmed   = "booking.confirmed"
	AuditBookingCompleted   = "booking.completed"
	AuditBookingCanceled    = "booking.canceled"
	AuditBookingPayout      = "booking.payout_attached"
	AuditCaptureFailed      = "booking.capture_failed"
	AuditReconcileNoop      = "reconcile.noop"
	AuditSweepRequeried     = "sweep.requeried"
	AuditCoachAccountLinked = "coach.payout_account_linked"
)
