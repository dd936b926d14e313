package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/models"
)

const defaultDisplayName = "Trail user"

type MongoUserService struct {
	users   *mongo.Collection
	reports *mongo.Collection
}

func NewMongoUserService(db *mongo.Database) *MongoUserService {
	return &MongoUserService{
		users:   db.Collection(database.UsersCollection),
		reports: db.Collection(database.ReportsCollection),
	}
}

func (s *MongoUserService) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bookmarks", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	return err
}

func (s *MongoUserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreate returns the user, creating an empty profile on first access.
func (s *MongoUserService) GetOrCreate(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	res := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": newUserFields(now, true)},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var user models.User
	if err := res.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertIdentity mirrors a user record pushed by the identity provider.
func (s *MongoUserService) UpsertIdentity(ctx context.Context, iu models.IdentityUser) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	if iu.Email != "" {
		set["email"] = strings.ToLower(strings.TrimSpace(iu.Email))
	}
	if iu.ImageURL != "" {
		set["profile_image"] = iu.ImageURL
	}

	name := strings.TrimSpace(iu.DisplayName)
	onInsert := newUserFields(now, name == "")
	delete(onInsert, "updated_at")
	if name != "" {
		set["display_name"] = name
	}

	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": iu.ID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoUserService) UpdateProfile(ctx context.Context, id string, req *models.UpdateProfileRequest) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if req.DisplayName != nil {
		set["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Bio != nil {
		set["bio"] = strings.TrimSpace(*req.Bio)
	}

	var user models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *MongoUserService) AddBookmark(ctx context.Context, userID, reportID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	onInsert := newUserFields(time.Now().UTC(), true)
	delete(onInsert, "bookmarks")
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"bookmarks": reportID}, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoUserService) RemoveBookmark(ctx context.Context, userID, reportID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"bookmarks": reportID}})
	return err
}

// Bookmarks returns the user's bookmarked report ids, oldest first.
func (s *MongoUserService) Bookmarks(ctx context.Context, userID string) ([]string, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	if user.Bookmarks == nil {
		return []string{}, nil
	}
	return user.Bookmarks, nil
}

func (s *MongoUserService) RemoveReportFromBookmarks(ctx context.Context, reportID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.users.UpdateMany(ctx, bson.M{"bookmarks": reportID}, bson.M{"$pull": bson.M{"bookmarks": reportID}})
	return err
}

// RecomputeStats totals the user's reports into their profile.
func (s *MongoUserService) RecomputeStats(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cur, err := s.reports.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":                  nil,
			"total_reports":        bson.M{"$sum": 1},
			"total_distance":       bson.M{"$sum": "$distance"},
			"total_elevation_gain": bson.M{"$sum": "$elevation_gain"},
			"total_elevation_loss": bson.M{"$sum": "$elevation_loss"},
		}}},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var stats models.UserStats
	if cur.Next(ctx) {
		if err := cur.Decode(&stats); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	_, err = s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"stats": stats}})
	return err
}

func newUserFields(now time.Time, withName bool) bson.M {
	fields := bson.M{
		"bio":        "",
		"bookmarks":  bson.A{},
		"stats":      models.UserStats{},
		"created_at": now,
		"updated_at": now,
	}
	if withName {
		fields["display_name"] = defaultDisplayName
	}
	return fields
}
