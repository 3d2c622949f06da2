package models

import "time"

type MessageType string

const (
	MsgSystemModuleInfo     MessageType = "SYSTEM_MODULE_INFO"
	MsgSystemSegmentContent MessageType = "SYSTEM_SEGMENT_CONTENT"
	MsgSystemExercisePrompt MessageType = "SYSTEM_EXERCISE_PROMPT"
	MsgUserExerciseAnswer   MessageType = "USER_EXERCISE_ANSWER"
	MsgUserQuestion         MessageType = "USER_QUESTION"
	MsgAIResponse           MessageType = "AI_RESPONSE"
)

type ReferenceType string

const (
	RefModule          ReferenceType = "MODULE"
	RefSegment         ReferenceType = "SEGMENT"
	RefInterestSegment ReferenceType = "INTEREST_SEGMENT"
	RefExercise        ReferenceType = "EXERCISE"
)

type ContentReference struct {
	ID   int64         `bson:"id" json:"id"`
	Type ReferenceType `bson:"type" json:"type"`
}

type ExerciseReference struct {
	ExerciseID        int64        `bson:"exercise_id" json:"exercise_id"`
	ExerciseType      ExerciseType `bson:"exercise_type" json:"exercise_type"`
	InterestSegmentID int64        `bson:"interest_segment_id,omitempty" json:"interest_segment_id,omitempty"`
}

// UserAnswer echoes a graded submission back onto the message record.
type UserAnswer struct {
	ExerciseID  int64     `bson:"exercise_id" json:"exercise_id"`
	Answer      Answer    `bson:"answer" json:"answer"`
	IsCorrect   bool      `bson:"is_correct" json:"is_correct"`
	Score       int       `bson:"score" json:"score"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
}

type ChatMessage struct {
	ID          string             `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	LearnerID   int64              `bson:"learner_id" json:"learner_id"`
	ModuleID    int64              `bson:"module_id" json:"module_id"`
	Type        MessageType        `bson:"type" json:"type"`
	Content     string             `bson:"content" json:"content"`
	ContentRef  *ContentReference  `bson:"content_ref,omitempty" json:"content_ref,omitempty"`
	ExerciseRef *ExerciseReference `bson:"exercise_ref,omitempty" json:"exercise_ref,omitempty"`
	UserAnswer  *UserAnswer        `bson:"user_answer,omitempty" json:"user_answer,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
