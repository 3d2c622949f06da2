package service

import (
	"context"
	"time"

	"learning-chat-service/internal/models"
	"learning-chat-service/internal/validation"
)

// The orchestrator talks to its stores and collaborators through these
// interfaces. The mongo repositories and the concrete collaborator packages
// satisfy them; tests swap in fakes.

type SessionStore interface {
	Create(ctx context.Context, session *models.ChatSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error)
	GetActive(ctx context.Context, learnerID, moduleID int64) (*models.ChatSession, error)
	SetState(ctx context.Context, sessionID, state string) (*models.ChatSession, error)
	SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) (*models.ChatSession, error)
	MergeProgress(ctx context.Context, sessionID string, lc models.LearningContext) (*models.ChatSession, error)
	BumpStats(ctx context.Context, sessionID string, delta models.StatsDelta) (*models.ChatSession, error)
	AppendConversationSummary(ctx context.Context, sessionID string, summary models.ConversationSummary) (*models.ChatSession, error)
	FindByModuleIDsAndState(ctx context.Context, learnerID int64, moduleIDs []int64, state string) ([]models.ChatSession, error)
}

type AttemptStore interface {
	Create(ctx context.Context, attempt *models.ExerciseAttempt) error
	FindByLearner(ctx context.Context, learnerID int64, exerciseIDs []int64) ([]models.ExerciseAttempt, error)
	PatchAudioKey(ctx context.Context, attemptID, audioKey string) error
	PatchASRResult(ctx context.Context, attemptID string, asr models.ASRResult) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	FindBySession(ctx context.Context, sessionID string, limit, offset int64) ([]models.ChatMessage, error)
	CountSince(ctx context.Context, sessionID string, t time.Time) (int64, error)
	FindSince(ctx context.Context, sessionID string, t time.Time) ([]models.ChatMessage, error)
}

// ContentProvider resolves the authored course content. Segment lookups may
// fail with repository.ErrNotFound per id; the orchestrator skips over those.
type ContentProvider interface {
	GetModule(ctx context.Context, moduleID int64) (*models.Module, error)
	NextModule(ctx context.Context, moduleID int64) (*models.Module, error)
	SegmentIDs(ctx context.Context, moduleID int64) ([]int64, error)
	GetSegment(ctx context.Context, segmentID int64, lang models.Language) (*models.Segment, error)
	InterestSegmentsFor(ctx context.Context, segmentID int64, lang models.Language) ([]models.InterestSegment, error)
	ExercisesFor(ctx context.Context, interestSegmentID int64, lang models.Language) ([]models.Exercise, error)
	ExercisesForSegment(ctx context.Context, segmentID int64) ([]models.Exercise, error)
	GetExercise(ctx context.Context, exerciseID int64) (*models.Exercise, error)
	LearnerPreferences(ctx context.Context, learnerID int64) (*models.LearnerPreferences, error)
}

// Validator grades a submission. An error means the submission failed; no
// attempt is recorded in that case.
type Validator interface {
	Validate(ctx context.Context, exercise *models.Exercise, answer models.Answer, lang models.Language) (*validation.Result, error)
}

type FeedbackGenerator interface {
	Generate(ctx context.Context, exercise *models.Exercise, answer models.Answer, isCorrect bool, score int, lang models.Language) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*models.ASRResult, error)
}

// AudioStore persists raw pronunciation audio. Upload failures are logged by
// the caller, never surfaced to the learner.
type AudioStore interface {
	UploadAudio(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Summarizer condenses a message window into one summary paragraph.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.ChatMessage, lang models.Language) (string, error)
}

// Publisher matches event.EventPublisher; a nil publisher drops events.
type Publisher interface {
	Publish(routingKey string, payload interface{}) error
}
