package webhookRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"findmycoach/models"
)

const dedupCollection = "webhook_events"

// ErrDuplicateEvent is returned when a provider event id has already been
// recorded, i.e. the event was applied before.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// WebhookRepository tracks processed provider event ids so that at-least-once
// delivery behaves as exactly-once from the consumer's perspective.
type WebhookRepository interface {
	// Record inserts the dedup record for the event id. Returns
	// ErrDuplicateEvent if the id was recorded before.
	Record(ctx context.Context, providerEventID, eventType string) error
	// Seen reports whether the event id has already been recorded.
	Seen(ctx context.Context, providerEventID string) (bool, error)
	// WithTransaction runs fn inside a multi-document transaction. The dedup
	// record and any ledger writes performed by fn commit or abort together,
	// so the two can never diverge.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoWebhookRepo implements WebhookRepository backed by MongoDB.
type MongoWebhookRepo struct {
	coll *mongo.Collection
}

func NewMongoWebhookRepo(db *mongo.Database) *MongoWebhookRepo {
	return &MongoWebhookRepo{coll: db.Collection(dedupCollection)}
}

// EnsureIndexes creates the unique index on provider_event_id that makes the
// dedup insert race-safe.
func (repo *MongoWebhookRepo) EnsureIndexes(ctx context.Context) error {
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider_event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating webhook dedup index: %w", err)
	}
	return nil
}

func (repo *MongoWebhookRepo) Record(ctx context.Context, providerEventID, eventType string) error {
	record := models.WebhookDedupRecord{
		ProviderEventID: providerEventID,
		EventType:       eventType,
		ProcessedAt:     time.Now().UTC(),
	}
	_, err := repo.coll.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("error recording webhook event %s: %w", providerEventID, err)
	}
	return nil
}

func (repo *MongoWebhookRepo) Seen(ctx context.Context, providerEventID string) (bool, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := repo.coll.FindOne(ctxWithTimeout, bson.M{"provider_event_id": providerEventID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking webhook event %s: %w", providerEventID, err)
	}
	return true, nil
}

// WithTransaction starts a session on the underlying client and runs fn under
// it. fn receives a session-bound context, so repository calls made with it
// join the same transaction.
func (repo *MongoWebhookRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := repo.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("error starting mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
