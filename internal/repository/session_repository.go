package repository

import (
	"context"
	"errors"
	"time"

	"learning-chat-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository struct {
	Col *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{Col: db.Collection("chat_sessions")}
}

// Create inserts a new session. It fails with ErrSessionExists when an ACTIVE
// session for the same learner and module is already stored.
func (r *SessionRepository) Create(ctx context.Context, session *models.ChatSession) error {
	existing, err := r.GetActive(ctx, session.LearnerID, session.LearningContext.ModuleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		return ErrSessionExists
	}

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Version = 1
	_, err = r.Col.InsertOne(ctx, session)
	return err
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.Col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetActive finds the single ACTIVE session for a learner and module.
func (r *SessionRepository) GetActive(ctx context.Context, learnerID, moduleID int64) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.Col.FindOne(ctx, bson.M{
		"learner_id":                 learnerID,
		"learning_context.module_id": moduleID,
		"status":                     models.SessionActive,
	}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Update applies a partial field set and returns the updated document. Every
// write bumps the version counter so stale read-modify-write cycles are
// detectable.
func (r *SessionRepository) Update(ctx context.Context, sessionID string, fields bson.M) (*models.ChatSession, error) {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set[k] = v
	}
	if status, ok := fields["status"]; ok && status == models.SessionCompleted {
		set["ended_at"] = time.Now()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session models.ChatSession
	err := r.Col.FindOneAndUpdate(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		opts,
	).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// MergeProgress replaces the embedded learning context and stamps activity
// times. The caller owns read-modify-write consistency: orchestrator
// operations hold the per-session lock for their whole duration.
func (r *SessionRepository) MergeProgress(ctx context.Context, sessionID string, lc models.LearningContext) (*models.ChatSession, error) {
	lc.LastActivityAt = time.Now()
	return r.Update(ctx, sessionID, bson.M{
		"learning_context":       lc,
		"stats.last_activity_at": lc.LastActivityAt,
	})
}

// SetState stores the FSM state string.
func (r *SessionRepository) SetState(ctx context.Context, sessionID, state string) (*models.ChatSession, error) {
	return r.Update(ctx, sessionID, bson.M{"state": state})
}

// SetStatus moves the session through its lifecycle.
func (r *SessionRepository) SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) (*models.ChatSession, error) {
	return r.Update(ctx, sessionID, bson.M{"status": status})
}

// BumpStats increments the session counters by the delta.
func (r *SessionRepository) BumpStats(ctx context.Context, sessionID string, delta models.StatsDelta) (*models.ChatSession, error) {
	inc := bson.M{}
	if delta.Messages != 0 {
		inc["stats.total_messages"] = delta.Messages
	}
	if delta.UserMessages != 0 {
		inc["stats.user_messages"] = delta.UserMessages
	}
	if delta.ExercisesCompleted != 0 {
		inc["stats.exercises_completed"] = delta.ExercisesCompleted
	}
	if delta.Score != 0 {
		inc["stats.total_score"] = delta.Score
	}
	if len(inc) == 0 {
		return r.GetBySessionID(ctx, sessionID)
	}
	return r.UpdateStats(ctx, sessionID, inc)
}

// UpdateStats increments the given counters. Counters only ever grow.
func (r *SessionRepository) UpdateStats(ctx context.Context, sessionID string, inc bson.M) (*models.ChatSession, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session models.ChatSession
	err := r.Col.FindOneAndUpdate(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$inc": inc,
			"$set": bson.M{"stats.last_activity_at": time.Now(), "updated_at": time.Now()},
		},
		opts,
	).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// summaryOverlaps reports whether [from, to] overlaps any stored summary
// range. Overlap means one range fully contains the other's boundaries, which
// is how a duplicate summarization trigger for the same window shows up.
func summaryOverlaps(existing []models.ConversationSummary, from, to time.Time) bool {
	for _, s := range existing {
		coveredByExisting := !s.From.After(from) && !s.To.Before(to)
		coversExisting := !from.After(s.From) && !to.Before(s.To)
		if coveredByExisting || coversExisting {
			return true
		}
	}
	return false
}

// AppendConversationSummary stores a summary for the [from, to] message
// window. An overlapping window is a duplicate trigger: the append is skipped
// and the current document returned unchanged. Summaries stay sorted by the
// window end ascending.
func (r *SessionRepository) AppendConversationSummary(ctx context.Context, sessionID string, summary models.ConversationSummary) (*models.ChatSession, error) {
	current, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if summaryOverlaps(current.ConversationSummaries, summary.From, summary.To) {
		return current, nil
	}

	summary.CreatedAt = time.Now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session models.ChatSession
	err = r.Col.FindOneAndUpdate(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$push": bson.M{
				"conversation_summaries": bson.M{
					"$each": []models.ConversationSummary{summary},
					"$sort": bson.M{"to_message_created_at": 1},
				},
			},
			"$set": bson.M{"updated_at": time.Now()},
			"$inc": bson.M{"version": 1},
		},
		opts,
	).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByModuleIDsAndState is used to mark modules as completed on listing
// endpoints elsewhere in the platform.
func (r *SessionRepository) FindByModuleIDsAndState(ctx context.Context, learnerID int64, moduleIDs []int64, state string) ([]models.ChatSession, error) {
	cur, err := r.Col.Find(ctx, bson.M{
		"learner_id":                 learnerID,
		"learning_context.module_id": bson.M{"$in": moduleIDs},
		"state":                      state,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sessions []models.ChatSession
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
