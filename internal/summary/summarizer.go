package summary

import (
	"context"
	"fmt"
	"strings"

	"learning-chat-service/internal/models"
)

// WindowSummarizer condenses a message window without an external model: it
// counts the learning milestones and keeps the most recent learner inputs.
// An LLM-backed summarizer can replace it behind the same interface.
type WindowSummarizer struct {
	// RecentInputs bounds how many trailing learner messages are quoted.
	RecentInputs int
}

func NewWindowSummarizer() *WindowSummarizer {
	return &WindowSummarizer{RecentInputs: 3}
}

func (w *WindowSummarizer) Summarize(_ context.Context, messages []models.ChatMessage, _ models.Language) (string, error) {
	var segments, exercises, answers, correct int
	var recent []string

	for _, m := range messages {
		switch m.Type {
		case models.MsgSystemSegmentContent:
			segments++
		case models.MsgSystemExercisePrompt:
			exercises++
		case models.MsgUserExerciseAnswer:
			answers++
			if m.UserAnswer != nil && m.UserAnswer.IsCorrect {
				correct++
			}
		case models.MsgUserQuestion:
			if m.Content != "" {
				recent = append(recent, m.Content)
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Covered %d segments and %d exercises; %d answers submitted (%d correct).", segments, exercises, answers, correct)
	if len(recent) > 0 {
		limit := w.RecentInputs
		if limit <= 0 {
			limit = 3
		}
		if len(recent) > limit {
			recent = recent[len(recent)-limit:]
		}
		fmt.Fprintf(&b, " Recent learner questions: %s", strings.Join(recent, "; "))
	}
	return b.String(), nil
}
