package models

// Content documents mirror the authoring side of the platform. This service
// only reads them; authoring CRUD lives elsewhere.

type Module struct {
	ID          int64  `bson:"_id" json:"id"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Order       int    `bson:"order" json:"order"`
	Status      string `bson:"status" json:"status"`
}

type Segment struct {
	ID            int64  `bson:"_id" json:"id"`
	ModuleID      int64  `bson:"module_id" json:"module_id"`
	Title         string `bson:"title" json:"title"`
	TheoryContent string `bson:"theory_content" json:"theory_content"`
	Order         int    `bson:"order" json:"order"`
	Status        string `bson:"status" json:"status"`
}

// InterestSegment is the interest-flavored variant of a segment: same theory,
// examples themed to one declared learner interest.
type InterestSegment struct {
	ID        int64  `bson:"_id" json:"id"`
	SegmentID int64  `bson:"segment_id" json:"segment_id"`
	Interest  string `bson:"interest" json:"interest"`
	Content   string `bson:"content" json:"content"`
}

// Exercise payload is type-specific; only the fields matching Type are set.
type Exercise struct {
	ID                int64        `bson:"_id" json:"id"`
	InterestSegmentID int64        `bson:"interest_segment_id" json:"interest_segment_id"`
	Type              ExerciseType `bson:"type" json:"type"`
	Title             string       `bson:"title" json:"title"`
	Status            string       `bson:"status" json:"status"`

	// CLOZE: sentences with blanks and accepted answers per blank.
	Blanks []ClozeBlank `bson:"blanks,omitempty" json:"blanks,omitempty"`
	// SENTENCE_REORDER: fragments in correct order.
	Fragments []string `bson:"fragments,omitempty" json:"fragments,omitempty"`
	// MULTIPLE_CHOICE / LISTENING_QUIZ: questions with option lists.
	Questions []ChoiceQuestion `bson:"questions,omitempty" json:"questions,omitempty"`
	// DICTATION / PRONUNCIATION: reference transcript and audio.
	Transcript string `bson:"transcript,omitempty" json:"transcript,omitempty"`
	AudioURL   string `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	// PICTURE_DESCRIPTION: prompt plus keywords expected in the answer.
	Prompt           string   `bson:"prompt,omitempty" json:"prompt,omitempty"`
	ExpectedKeywords []string `bson:"expected_keywords,omitempty" json:"expected_keywords,omitempty"`
	ImageURL         string   `bson:"image_url,omitempty" json:"image_url,omitempty"`
	// FLASHCARD: cards are reviewed passively, no answer to grade.
	Cards []Flashcard `bson:"cards,omitempty" json:"cards,omitempty"`
}

type ClozeBlank struct {
	Sentence string   `bson:"sentence" json:"sentence"`
	Accepted []string `bson:"accepted" json:"accepted"`
}

type ChoiceQuestion struct {
	Question string   `bson:"question" json:"question"`
	Options  []string `bson:"options" json:"options"`
	Correct  int      `bson:"correct" json:"correct"`
}

type Flashcard struct {
	Front string `bson:"front" json:"front"`
	Back  string `bson:"back" json:"back"`
}

type Learner struct {
	ID        int64    `bson:"_id" json:"id"`
	Language  Language `bson:"native_language" json:"native_language"`
	Interests []string `bson:"interests" json:"interests"`
}
