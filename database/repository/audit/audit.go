package auditRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"findmycoach/models"
)

const auditCollection = "audit_events"

// AuditRepository is the append-only audit trail. There are deliberately no
// update or delete methods.
type AuditRepository interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditEvent, error)
}

// MongoAuditRepo implements AuditRepository backed by MongoDB.
type MongoAuditRepo struct {
	coll *mongo.Collection
}

func NewMongoAuditRepo(db *mongo.Database) *MongoAuditRepo {
	return &MongoAuditRepo{coll: db.Collection(auditCollection)}
}

// Append inserts an audit event. Timestamps are stamped here so callers only
// describe what happened.
func (repo *MongoAuditRepo) Append(ctx context.Context, event *models.AuditEvent) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.coll.InsertOne(ctxWithTimeout, event); err != nil {
		return fmt.Errorf("error appending audit event %s: %w", event.Type, err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (repo *MongoAuditRepo) ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditEvent, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"entity": entity, "entity_id": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := repo.coll.Find(ctxWithTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing audit events for %s/%s: %w", entity, entityID, err)
	}
	defer cursor.Close(ctxWithTimeout)

	var events []models.AuditEvent
	if err := cursor.All(ctxWithTimeout, &events); err != nil {
		return nil, fmt.Errorf("error decoding audit events for %s/%s: %w", entity, entityID, err)
	}
	return events, nil
}
