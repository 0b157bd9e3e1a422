package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"findmycoach/models"
)

const bookingCollection = "bookings"

// MongoBookingRepo implements BookingRepository backed by MongoDB.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo wires the repository to the given database handle.
func NewMongoBookingRepo(db *mongo.Database) *MongoBookingRepo {
	return &MongoBookingRepo{coll: db.Collection(bookingCollection)}
}

// EnsureIndexes creates the unique id index and the coach/time index used by
// the overlap check.
func (repo *MongoBookingRepo) EnsureIndexes(ctx context.Context) error {
	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "coach_id", Value: 1}, {Key: "start", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("error creating booking indexes: %w", err)
	}
	return nil
}

// Create inserts a new booking document.
func (repo *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := repo.coll.InsertOne(ctxWithTimeout, booking); err != nil {
		return fmt.Errorf("error creating booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its ID.
func (repo *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	err := repo.coll.FindOne(ctxWithTimeout, bson.M{"id": id}).Decode(&booking)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching booking %s: %w", id, err)
	}
	return &booking, nil
}

// Transition performs the guarded compare-and-swap: the write applies only if
// the stored status and version still equal what the caller observed. When the
// set carries an authorization reference, the filter additionally requires the
// stored reference to be unset or identical, so a reference can never be
// reassigned.
func (repo *MongoBookingRepo) Transition(ctx context.Context, id, expectedStatus string, expectedVersion int64, set TransitionSet) (*models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"id":      id,
		"status":  expectedStatus,
		"version": expectedVersion,
	}
	fields := bson.M{
		"status":     set.Status,
		"updated_at": time.Now().UTC(),
	}
	if set.AuthorizationRef != "" {
		filter["authorization_ref"] = bson.M{"$in": bson.A{nil, "", set.AuthorizationRef}}
		fields["authorization_ref"] = set.AuthorizationRef
	}
	update := bson.M{
		"$set": fields,
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Booking
	err := repo.coll.FindOneAndUpdate(ctxWithTimeout, filter, update, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		// Distinguish a stale precondition from a missing booking.
		if _, getErr := repo.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("error transitioning booking %s: %w", id, err)
	}
	return &updated, nil
}

// AttachPayoutRef stores a payout reference on a COMPLETED booking. It is not
// a status transition; the guard only requires the terminal COMPLETED status
// and an unset payout reference. Returns false when the guard did not match.
func (repo *MongoBookingRepo) AttachPayoutRef(ctx context.Context, id, payoutRef string) (bool, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"id":         id,
		"status":     models.BookingStatusCompleted,
		"payout_ref": bson.M{"$in": bson.A{nil, ""}},
	}
	update := bson.M{
		"$set": bson.M{"payout_ref": payoutRef, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	}
	res, err := repo.coll.UpdateOne(ctxWithTimeout, filter, update)
	if err != nil {
		return false, fmt.Errorf("error attaching payout ref to booking %s: %w", id, err)
	}
	return res.MatchedCount == 1, nil
}

// CountOverlapping counts the coach's bookings in the given statuses whose
// window intersects [start, end).
func (repo *MongoBookingRepo) CountOverlapping(ctx context.Context, coachID string, start, end time.Time, statuses []string) (int64, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"coach_id": coachID,
		"status":   bson.M{"$in": statuses},
		"start":    bson.M{"$lt": end},
		"end":      bson.M{"$gt": start},
	}
	count, err := repo.coll.CountDocuments(ctxWithTimeout, filter)
	if err != nil {
		return 0, fmt.Errorf("error counting overlapping bookings for coach %s: %w", coachID, err)
	}
	return count, nil
}

// FindPendingOlderThan returns PENDING bookings created before the cutoff,
// the candidates for the out-of-band reconciliation sweep.
func (repo *MongoBookingRepo) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status":     models.BookingStatusPending,
		"created_at": bson.M{"$lt": cutoff},
	}
	cursor, err := repo.coll.Find(ctxWithTimeout, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding stale pending bookings: %w", err)
	}
	defer cursor.Close(ctxWithTimeout)

	var bookings []models.Booking
	if err := cursor.All(ctxWithTimeout, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding stale pending bookings: %w", err)
	}
	return bookings, nil
}

// ListByParty returns bookings where the user is either the player or the
// coach, newest first.
func (repo *MongoBookingRepo) ListByParty(ctx context.Context, userID string) ([]models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"player_id": userID},
			bson.M{"coach_id": userID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := repo.coll.Find(ctxWithTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings for %s: %w", userID, err)
	}
	defer cursor.Close(ctxWithTimeout)

	var bookings []models.Booking
	if err := cursor.All(ctxWithTimeout, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings for %s: %w", userID, err)
	}
	return bookings, nil
}
