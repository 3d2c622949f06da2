package feedback

import (
	"context"

	"learning-chat-service/internal/i18n"
	"learning-chat-service/internal/models"
)

// TemplateFeedback renders learner-facing feedback from the localized
// catalog. It is the default FeedbackGenerator; an LLM-backed one can replace
// it without touching the orchestrator.
type TemplateFeedback struct{}

func NewTemplateFeedback() *TemplateFeedback {
	return &TemplateFeedback{}
}

func (f *TemplateFeedback) Generate(_ context.Context, exercise *models.Exercise, _ models.Answer, isCorrect bool, score int, lang models.Language) (string, error) {
	base := i18n.Message(i18n.ExerciseCompleted, lang, score)
	if isCorrect {
		return base, nil
	}
	hint := correctionHint(exercise, lang)
	if hint == "" {
		return base, nil
	}
	return base + "\n" + hint, nil
}

// correctionHint shows the expected answer for types where revealing it helps
// the learner. Choice-based types keep their answers hidden for retries.
func correctionHint(exercise *models.Exercise, lang models.Language) string {
	switch exercise.Type {
	case models.ExerciseDictation, models.ExercisePronunciation:
		if exercise.Transcript != "" {
			return expectedLabel(lang) + " " + exercise.Transcript
		}
	case models.ExerciseSentenceReorder:
		if len(exercise.Fragments) == 0 {
			return ""
		}
		sentence := exercise.Fragments[0]
		for _, fragment := range exercise.Fragments[1:] {
			sentence += " " + fragment
		}
		return expectedLabel(lang) + " " + sentence
	}
	return ""
}

func expectedLabel(lang models.Language) string {
	switch lang {
	case models.LangKazakh:
		return "Дұрыс нұсқасы:"
	case models.LangRussian:
		return "Правильный вариант:"
	default:
		return "Expected:"
	}
}

// DontKnow is the canned feedback for the "I don't know" shortcut.
func DontKnow(lang models.Language) string {
	return i18n.Message(i18n.DontKnowFeedback, lang)
}
