package repository

import (
	"context"
	"errors"
	"time"

	"learning-chat-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AttemptRepository is the append-only exercise attempt ledger.
type AttemptRepository struct {
	Col *mongo.Collection
}

func NewAttemptRepository(db *mongo.Database) *AttemptRepository {
	return &AttemptRepository{Col: db.Collection("exercise_attempts")}
}

// Create assigns the attempt number by counting prior attempts for the same
// learner and exercise, then inserts. Numbers are 1-based. A client retry
// after a crash produces a duplicate attempt; the ledger accepts that.
func (r *AttemptRepository) Create(ctx context.Context, attempt *models.ExerciseAttempt) error {
	count, err := r.Col.CountDocuments(ctx, bson.M{
		"learner_id":  attempt.LearnerID,
		"exercise_id": attempt.ExerciseID,
	})
	if err != nil {
		return err
	}

	attempt.AttemptNumber = int(count) + 1
	attempt.CreatedAt = time.Now()
	res, err := r.Col.InsertOne(ctx, attempt)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		attempt.ID = oid.Hex()
	}
	return nil
}

// FindByLearner returns attempts newest first, optionally restricted to a set
// of exercises. Callers picking "latest attempt per exercise" rely on the
// descending order.
func (r *AttemptRepository) FindByLearner(ctx context.Context, learnerID int64, exerciseIDs []int64) ([]models.ExerciseAttempt, error) {
	filter := bson.M{"learner_id": learnerID}
	if len(exerciseIDs) > 0 {
		filter["exercise_id"] = bson.M{"$in": exerciseIDs}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.Col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var attempts []models.ExerciseAttempt
	if err := cur.All(ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// PatchAudioKey sets the audio object key after the background upload lands.
func (r *AttemptRepository) PatchAudioKey(ctx context.Context, attemptID, audioKey string) error {
	return r.patch(ctx, attemptID, bson.M{"audio_key": audioKey})
}

// PatchASRResult stores transcription metadata after background ASR.
func (r *AttemptRepository) PatchASRResult(ctx context.Context, attemptID string, asr models.ASRResult) error {
	return r.patch(ctx, attemptID, bson.M{"asr_result": asr})
}

func (r *AttemptRepository) patch(ctx context.Context, attemptID string, set bson.M) error {
	objID, err := primitive.ObjectIDFromHex(attemptID)
	if err != nil {
		return err
	}
	res, err := r.Col.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AttemptRepository) FindByID(ctx context.Context, attemptID string) (*models.ExerciseAttempt, error) {
	objID, err := primitive.ObjectIDFromHex(attemptID)
	if err != nil {
		return nil, err
	}
	var attempt models.ExerciseAttempt
	err = r.Col.FindOne(ctx, bson.M{"_id": objID}).Decode(&attempt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}
