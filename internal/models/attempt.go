package models

import "time"

type ExerciseType string

const (
	ExerciseFlashcard          ExerciseType = "FLASHCARD"
	ExerciseCloze              ExerciseType = "CLOZE"
	ExerciseSentenceReorder    ExerciseType = "SENTENCE_REORDER"
	ExerciseMultipleChoice     ExerciseType = "MULTIPLE_CHOICE"
	ExerciseDictation          ExerciseType = "DICTATION"
	ExerciseListeningQuiz      ExerciseType = "LISTENING_QUIZ"
	ExercisePronunciation      ExerciseType = "PRONUNCIATION"
	ExercisePictureDescription ExerciseType = "PICTURE_DESCRIPTION"
)

// ASRResult is patched onto an attempt after background transcription.
type ASRResult struct {
	Transcript string  `bson:"transcript" json:"transcript"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	Model      string  `bson:"model,omitempty" json:"model,omitempty"`
}

// ExerciseAttempt is append-only. After insert it is mutated at most twice:
// the audio key patch once the background upload lands, and the ASR patch.
// Both are best-effort; an attempt without them is still complete.
type ExerciseAttempt struct {
	ID            string       `bson:"_id,omitempty" json:"id"`
	LearnerID     int64        `bson:"learner_id" json:"learner_id"`
	ExerciseID    int64        `bson:"exercise_id" json:"exercise_id"`
	ExerciseType  ExerciseType `bson:"exercise_type" json:"exercise_type"`
	Answer        Answer       `bson:"answer" json:"answer"`
	IsCorrect     bool         `bson:"is_correct" json:"is_correct"`
	Score         int          `bson:"score" json:"score"`
	TimeSpent     int          `bson:"time_spent" json:"time_spent"`
	AttemptNumber int          `bson:"attempt_number" json:"attempt_number"`
	HintsUsed     int          `bson:"hints_used" json:"hints_used"`
	AudioKey      string       `bson:"audio_key,omitempty" json:"audio_key,omitempty"`
	ASRResult     *ASRResult   `bson:"asr_result,omitempty" json:"asr_result,omitempty"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
}
