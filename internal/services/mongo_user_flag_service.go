package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/models"
)

type MongoUserFlagService struct {
	col *mongo.Collection
}

func NewMongoUserFlagService(db *mongo.Database) *MongoUserFlagService {
	return &MongoUserFlagService{col: db.Collection(database.UserFlagsCollection)}
}

func (s *MongoUserFlagService) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// AddStrike increments the user's strike counter and returns the new record.
func (s *MongoUserFlagService) AddStrike(ctx context.Context, userID, reason string) (*models.UserFlag, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$inc": bson.M{"strikes": 1},
		"$set": bson.M{"last_strike_at": now, "last_reason": reason, "updated_at": now},
		"$setOnInsert": bson.M{
			"user_id": userID,
		},
	}

	var out models.UserFlag
	err := s.col.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
