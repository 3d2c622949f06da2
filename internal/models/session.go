package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAbandoned SessionStatus = "ABANDONED"
)

type SessionType string

const (
	SessionLearningFlow SessionType = "LEARNING_FLOW"
	SessionFreeChat     SessionType = "FREE_CHAT"
)

type Language string

const (
	LangEnglish Language = "ENGLISH"
	LangKazakh  Language = "KAZAKH"
	LangRussian Language = "RUSSIAN"
)

// ModuleSnapshot is the denormalized module header stored inside the session
// so the chat can render without re-fetching the module on every turn.
type ModuleSnapshot struct {
	ID          int64  `bson:"id" json:"id"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Order       int    `bson:"order" json:"order"`
}

// LearningContext is the mutable progress cursor embedded in a session.
// It is only ever written through SessionRepository.MergeProgress under the
// per-session lock held by the orchestrator.
type LearningContext struct {
	ModuleID                 int64          `bson:"module_id" json:"module_id"`
	Module                   ModuleSnapshot `bson:"module" json:"module"`
	NextModuleID             int64          `bson:"next_module_id,omitempty" json:"next_module_id,omitempty"`
	SegmentIDs               []int64        `bson:"segment_ids" json:"segment_ids"`
	CurrentSegmentID         int64          `bson:"current_segment_id,omitempty" json:"current_segment_id,omitempty"`
	CurrentInterestSegmentID int64          `bson:"current_interest_segment_id,omitempty" json:"current_interest_segment_id,omitempty"`
	CurrentExerciseID        int64          `bson:"current_exercise_id,omitempty" json:"current_exercise_id,omitempty"`
	CurrentSegmentIndex      int            `bson:"current_segment_index" json:"current_segment_index"`
	ExercisesPerSegment      int            `bson:"exercises_per_segment" json:"exercises_per_segment"`
	CompletedSegmentIDs      []int64        `bson:"completed_segment_ids" json:"completed_segment_ids"`
	CompletedExerciseIDs     []int64        `bson:"completed_exercise_ids" json:"completed_exercise_ids"`
	InterestIndex            int            `bson:"interest_index" json:"interest_index"`
	SelectedInterest         string         `bson:"selected_interest,omitempty" json:"selected_interest,omitempty"`
	LastActivityAt           time.Time      `bson:"last_activity_at" json:"last_activity_at"`
}

// StatsDelta is the increment applied to SessionStats after an operation.
type StatsDelta struct {
	Messages           int
	UserMessages       int
	ExercisesCompleted int
	Score              int
}

// SessionStats counters are monotonically non-decreasing.
type SessionStats struct {
	TotalMessages       int       `bson:"total_messages" json:"total_messages"`
	UserMessages        int       `bson:"user_messages" json:"user_messages"`
	ExercisesCompleted  int       `bson:"exercises_completed" json:"exercises_completed"`
	TotalScore          int       `bson:"total_score" json:"total_score"`
	AverageResponseTime float64   `bson:"average_response_time" json:"average_response_time"`
	LastActivityAt      time.Time `bson:"last_activity_at" json:"last_activity_at"`
}

// ConversationSummary covers the message window [From, To]. Stored ranges
// never overlap; the repository rejects appends that would break that.
type ConversationSummary struct {
	Summary   string    `bson:"summary" json:"summary"`
	From      time.Time `bson:"from_message_created_at" json:"from_message_created_at"`
	To        time.Time `bson:"to_message_created_at" json:"to_message_created_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type ChatSession struct {
	ID                    string                `bson:"_id,omitempty" json:"-"`
	SessionID             string                `bson:"session_id" json:"session_id"`
	LearnerID             int64                 `bson:"learner_id" json:"learner_id"`
	Type                  SessionType           `bson:"type" json:"type"`
	Status                SessionStatus         `bson:"status" json:"status"`
	State                 string                `bson:"state" json:"state"`
	LearningContext       LearningContext       `bson:"learning_context" json:"learning_context"`
	Stats                 SessionStats          `bson:"stats" json:"stats"`
	ConversationSummaries []ConversationSummary `bson:"conversation_summaries" json:"conversation_summaries"`
	Version               int64                 `bson:"version" json:"-"`
	StartedAt             time.Time             `bson:"started_at" json:"started_at"`
	EndedAt               *time.Time            `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	CreatedAt             time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `bson:"updated_at" json:"updated_at"`
}

// LearnerPreferences is what the flow needs from the learner profile.
type LearnerPreferences struct {
	Language  Language `bson:"language" json:"language"`
	Interests []string `bson:"interests" json:"interests"`
}
