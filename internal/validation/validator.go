package validation

import (
	"context"
	"strings"

	"learning-chat-service/internal/models"
)

// Result is the grading decision for one submission.
type Result struct {
	IsCorrect bool
	Score     int
}

// RuleValidator grades answers against the exercise payload. Each exercise
// type accepts exactly one answer kind; a mismatched kind scores zero.
type RuleValidator struct{}

func NewRuleValidator() *RuleValidator {
	return &RuleValidator{}
}

const passingScore = 70

func (v *RuleValidator) Validate(_ context.Context, exercise *models.Exercise, answer models.Answer, _ models.Language) (*Result, error) {
	if answer.IsEmpty() && exercise.Type != models.ExerciseFlashcard {
		return &Result{IsCorrect: false, Score: 0}, nil
	}

	var score int
	switch exercise.Type {
	case models.ExerciseFlashcard:
		// Reviewing the cards is the exercise; submission alone passes.
		score = 100
	case models.ExerciseCloze:
		score = scoreCloze(exercise.Blanks, answer)
	case models.ExerciseSentenceReorder:
		score = scoreReorder(exercise.Fragments, answer)
	case models.ExerciseMultipleChoice, models.ExerciseListeningQuiz:
		score = scoreChoices(exercise.Questions, answer)
	case models.ExerciseDictation:
		score = scoreTranscriptMatch(exercise.Transcript, textOf(answer))
	case models.ExercisePronunciation:
		score = scorePronunciation(exercise.Transcript, answer)
	case models.ExercisePictureDescription:
		score = scoreKeywords(exercise.ExpectedKeywords, textOf(answer))
	default:
		score = 0
	}

	return &Result{IsCorrect: score >= passingScore, Score: score}, nil
}

func textOf(answer models.Answer) string {
	switch answer.Kind {
	case models.AnswerText:
		return answer.Text
	case models.AnswerSpeech:
		if answer.Speech != nil {
			return answer.Speech.Transcript
		}
	}
	return ""
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:")
	return strings.Join(strings.Fields(s), " ")
}

func scoreCloze(blanks []models.ClozeBlank, answer models.Answer) int {
	if answer.Kind != models.AnswerTexts || len(blanks) == 0 {
		return 0
	}
	correct := 0
	for i, blank := range blanks {
		if i >= len(answer.Texts) {
			break
		}
		given := normalize(answer.Texts[i])
		for _, accepted := range blank.Accepted {
			if normalize(accepted) == given {
				correct++
				break
			}
		}
	}
	return correct * 100 / len(blanks)
}

func scoreReorder(fragments []string, answer models.Answer) int {
	if answer.Kind != models.AnswerTexts || len(fragments) == 0 {
		return 0
	}
	if len(answer.Texts) != len(fragments) {
		return 0
	}
	correct := 0
	for i, fragment := range fragments {
		if normalize(answer.Texts[i]) == normalize(fragment) {
			correct++
		}
	}
	return correct * 100 / len(fragments)
}

func scoreChoices(questions []models.ChoiceQuestion, answer models.Answer) int {
	if answer.Kind != models.AnswerChoices || len(questions) == 0 {
		return 0
	}
	correct := 0
	for i, q := range questions {
		if i < len(answer.Choices) && answer.Choices[i] == q.Correct {
			correct++
		}
	}
	return correct * 100 / len(questions)
}

// scoreTranscriptMatch compares word by word against the reference, scoring
// the share of reference words reproduced in order.
func scoreTranscriptMatch(reference, given string) int {
	refWords := strings.Fields(normalize(reference))
	givenWords := strings.Fields(normalize(given))
	if len(refWords) == 0 {
		return 0
	}
	matched := 0
	j := 0
	for _, w := range refWords {
		for k := j; k < len(givenWords); k++ {
			if givenWords[k] == w {
				matched++
				j = k + 1
				break
			}
		}
	}
	return matched * 100 / len(refWords)
}

func scorePronunciation(reference string, answer models.Answer) int {
	if answer.Kind != models.AnswerSpeech || answer.Speech == nil {
		return 0
	}
	match := scoreTranscriptMatch(reference, answer.Speech.Transcript)
	// ASR confidence discounts the transcript match; a low-confidence
	// transcription should not produce a confident pass.
	return int(float64(match) * answer.Speech.Confidence)
}

func scoreKeywords(keywords []string, given string) int {
	if len(keywords) == 0 {
		return 0
	}
	text := normalize(given)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(text, normalize(kw)) {
			found++
		}
	}
	return found * 100 / len(keywords)
}
