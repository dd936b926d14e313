package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/models"
)

const inboxLimit = 100

type MongoMessageService struct {
	col *mongo.Collection
}

func NewMongoMessageService(db *mongo.Database) *MongoMessageService {
	return &MongoMessageService{col: db.Collection(database.MessagesCollection)}
}

func (s *MongoMessageService) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}}},
	})
	return err
}

// Send stores a message from sender to req.RecipientID.
func (s *MongoMessageService) Send(ctx context.Context, sender *models.User, req *models.SendMessageRequest) (*models.Message, error) {
	recipient := strings.TrimSpace(req.RecipientID)
	if sender.ID == recipient {
		return nil, ErrSelfMessage
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	replyTo := strings.TrimSpace(req.ReplyTo)
	if replyTo == "" {
		replyTo = sender.Email
	}
	msg := &models.Message{
		ID:          uuid.New().String(),
		SenderID:    sender.ID,
		RecipientID: recipient,
		ReportID:    strings.TrimSpace(req.ReportID),
		SenderName:  sender.DisplayName,
		ReplyTo:     replyTo,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        strings.TrimSpace(req.Body),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.col.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Inbox lists messages received by userID, newest first.
func (s *MongoMessageService) Inbox(ctx context.Context, userID string, unreadOnly bool) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	filter := bson.M{"recipient_id": userID}
	if unreadOnly {
		filter["read"] = false
	}
	cur, err := s.col.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(inboxLimit))
	if err != nil {
		return nil, err
	}
	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoMessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.col.CountDocuments(ctx, bson.M{"recipient_id": userID, "read": false})
}

// MarkRead flags a message as read. Only the recipient may do so.
func (s *MongoMessageService) MarkRead(ctx context.Context, userID, id string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var msg models.Message
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "recipient_id": userID},
		bson.M{"$set": bson.M{"read": true, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missingOrForeign(ctx, id)
		}
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message. Only the recipient may do so.
func (s *MongoMessageService) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "recipient_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return s.missingOrForeign(ctx, id)
	}
	return nil
}

func (s *MongoMessageService) missingOrForeign(ctx context.Context, id string) error {
	err := s.col.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	return ErrUnauthorized
}
