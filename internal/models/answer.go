package models

type AnswerKind string

const (
	AnswerNone    AnswerKind = "NONE"
	AnswerText    AnswerKind = "TEXT"
	AnswerTexts   AnswerKind = "TEXTS"
	AnswerChoices AnswerKind = "CHOICES"
	AnswerSpeech  AnswerKind = "SPEECH"
)

// SpeechAnswer is the transcript produced for a pronunciation submission.
type SpeechAnswer struct {
	Transcript string  `bson:"transcript" json:"transcript"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	AudioURL   string  `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
}

// Answer is a tagged union over every answer shape the exercise types accept.
// Exactly the field matching Kind is set; the rest stay zero.
// NONE: flashcard review, or an explicit "I don't know".
// TEXT: dictation, picture description.
// TEXTS: cloze blanks, sentence reorder fragments.
// CHOICES: multiple choice / listening quiz option indexes.
// SPEECH: pronunciation transcript with ASR confidence.
type Answer struct {
	Kind    AnswerKind    `bson:"kind" json:"kind"`
	Text    string        `bson:"text,omitempty" json:"text,omitempty"`
	Texts   []string      `bson:"texts,omitempty" json:"texts,omitempty"`
	Choices []int         `bson:"choices,omitempty" json:"choices,omitempty"`
	Speech  *SpeechAnswer `bson:"speech,omitempty" json:"speech,omitempty"`
}

func NoAnswer() Answer {
	return Answer{Kind: AnswerNone}
}

func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerText, Text: text}
}

func TextsAnswer(texts []string) Answer {
	return Answer{Kind: AnswerTexts, Texts: texts}
}

func ChoicesAnswer(choices []int) Answer {
	return Answer{Kind: AnswerChoices, Choices: choices}
}

func SpeechAnswerOf(transcript string, confidence float64) Answer {
	return Answer{Kind: AnswerSpeech, Speech: &SpeechAnswer{Transcript: transcript, Confidence: confidence}}
}

func (a Answer) IsEmpty() bool {
	return a.Kind == "" || a.Kind == AnswerNone
}
