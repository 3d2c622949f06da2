package repository

import (
	"context"
	"errors"

	"learning-chat-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const statusPublished = "PUBLISHED"

// ContentRepository reads the authored course content. It implements the
// orchestrator's ContentProvider contract over the shared content collections.
type ContentRepository struct {
	Modules          *mongo.Collection
	Segments         *mongo.Collection
	InterestSegments *mongo.Collection
	Exercises        *mongo.Collection
	Learners         *mongo.Collection
}

func NewContentRepository(db *mongo.Database) *ContentRepository {
	return &ContentRepository{
		Modules:          db.Collection("modules"),
		Segments:         db.Collection("segments"),
		InterestSegments: db.Collection("interest_segments"),
		Exercises:        db.Collection("exercises"),
		Learners:         db.Collection("learners"),
	}
}

func (r *ContentRepository) GetModule(ctx context.Context, moduleID int64) (*models.Module, error) {
	var module models.Module
	err := r.Modules.FindOne(ctx, bson.M{"_id": moduleID}).Decode(&module)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &module, nil
}

// NextModule returns the published module ordered directly after moduleID, or
// ErrNotFound when it is the last one.
func (r *ContentRepository) NextModule(ctx context.Context, moduleID int64) (*models.Module, error) {
	current, err := r.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "order", Value: 1}})
	var next models.Module
	err = r.Modules.FindOne(ctx, bson.M{
		"status": statusPublished,
		"order":  bson.M{"$gt": current.Order},
	}, opts).Decode(&next)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// SegmentIDs returns ordered published segment ids for a module.
func (r *ContentRepository) SegmentIDs(ctx context.Context, moduleID int64) ([]int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "order", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	cur, err := r.Segments.Find(ctx, bson.M{
		"module_id": moduleID,
		"status":    statusPublished,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *ContentRepository) GetSegment(ctx context.Context, segmentID int64, _ models.Language) (*models.Segment, error) {
	var segment models.Segment
	err := r.Segments.FindOne(ctx, bson.M{"_id": segmentID}).Decode(&segment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &segment, nil
}

func (r *ContentRepository) InterestSegmentsFor(ctx context.Context, segmentID int64, _ models.Language) ([]models.InterestSegment, error) {
	cur, err := r.InterestSegments.Find(ctx, bson.M{"segment_id": segmentID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var segments []models.InterestSegment
	if err := cur.All(ctx, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *ContentRepository) ExercisesFor(ctx context.Context, interestSegmentID int64, _ models.Language) ([]models.Exercise, error) {
	cur, err := r.Exercises.Find(ctx, bson.M{
		"interest_segment_id": interestSegmentID,
		"status":              statusPublished,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var exercises []models.Exercise
	if err := cur.All(ctx, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

// ExercisesForSegment gathers every published exercise under a segment across
// all of its interest variants, used by the module-completion review.
func (r *ContentRepository) ExercisesForSegment(ctx context.Context, segmentID int64) ([]models.Exercise, error) {
	interestSegments, err := r.InterestSegmentsFor(ctx, segmentID, models.LangEnglish)
	if err != nil {
		return nil, err
	}
	var all []models.Exercise
	for _, is := range interestSegments {
		exercises, err := r.ExercisesFor(ctx, is.ID, models.LangEnglish)
		if err != nil {
			return nil, err
		}
		all = append(all, exercises...)
	}
	return all, nil
}

func (r *ContentRepository) GetExercise(ctx context.Context, exerciseID int64) (*models.Exercise, error) {
	var exercise models.Exercise
	err := r.Exercises.FindOne(ctx, bson.M{"_id": exerciseID}).Decode(&exercise)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exercise, nil
}

// LearnerPreferences loads the learner's native language and interest list.
func (r *ContentRepository) LearnerPreferences(ctx context.Context, learnerID int64) (*models.LearnerPreferences, error) {
	var learner models.Learner
	err := r.Learners.FindOne(ctx, bson.M{"_id": learnerID}).Decode(&learner)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	prefs := &models.LearnerPreferences{Language: learner.Language, Interests: learner.Interests}
	if prefs.Language == "" {
		prefs.Language = models.LangEnglish
	}
	return prefs, nil
}
