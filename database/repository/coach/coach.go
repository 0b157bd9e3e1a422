package coachRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"findmycoach/models"
)

const coachCollection = "coach_profiles"

// ErrNotFound means no coach profile exists for the given user id.
var ErrNotFound = errors.New("coach profile not found")

// CoachDirectory is the booking core's read/write window into coach profiles.
// Profile management is owned elsewhere; this service only looks up the payout
// destination and persists the connected-account id after onboarding.
type CoachDirectory interface {
	GetByUserID(ctx context.Context, userID string) (*models.CoachProfile, error)
	SetPayoutAccount(ctx context.Context, userID, accountID string) error
}

// MongoCoachRepo implements CoachDirectory backed by MongoDB.
type MongoCoachRepo struct {
	coll *mongo.Collection
}

func NewMongoCoachRepo(db *mongo.Database) *MongoCoachRepo {
	return &MongoCoachRepo{coll: db.Collection(coachCollection)}
}

func (repo *MongoCoachRepo) GetByUserID(ctx context.Context, userID string) (*models.CoachProfile, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var coach models.CoachProfile
	err := repo.coll.FindOne(ctxWithTimeout, bson.M{"user_id": userID}).Decode(&coach)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching coach profile %s: %w", userID, err)
	}
	return &coach, nil
}

func (repo *MongoCoachRepo) SetPayoutAccount(ctx context.Context, userID, accountID string) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"payout_account_id": accountID, "updated_at": time.Now().UTC()}}
	res, err := repo.coll.UpdateOne(ctxWithTimeout, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("error setting payout account for coach %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
