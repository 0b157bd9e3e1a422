package models

import "time"

// WebhookDedupRecord marks a provider event id as applied. Its existence is the
// sole signal that an inbound event has already been processed; a unique index
// on provider_event_id turns at-least-once delivery into at-most-once
// application.
type WebhookDedupRecord struct {
	ProviderEventID string    `bson:"provider_event_id" json:"provider_event_id"`
	EventType       string    `bson:"event_type" json:"event_type"`
	ProcessedAt     time.Time `bson:"processed_at" json:"processed_at"`
}
