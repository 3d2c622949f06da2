package repository

import (
	"context"
	"time"

	"learning-chat-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository struct {
	Col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{Col: db.Collection("chat_messages")}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	msg.CreatedAt = time.Now()
	res, err := r.Col.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

// FindBySession returns messages oldest first with offset pagination.
func (r *MessageRepository) FindBySession(ctx context.Context, sessionID string, limit, offset int64) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.Col.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var messages []models.ChatMessage
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountSince counts messages created after t, used by the summarization
// trigger to decide whether a new window is due.
func (r *MessageRepository) CountSince(ctx context.Context, sessionID string, t time.Time) (int64, error) {
	return r.Col.CountDocuments(ctx, bson.M{
		"session_id": sessionID,
		"created_at": bson.M{"$gt": t},
	})
}

// FindSince returns messages created after t, oldest first.
func (r *MessageRepository) FindSince(ctx context.Context, sessionID string, t time.Time) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.Col.Find(ctx, bson.M{
		"session_id": sessionID,
		"created_at": bson.M{"$gt": t},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var messages []models.ChatMessage
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
