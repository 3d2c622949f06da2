package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"learning-chat-service/internal/event"
	"learning-chat-service/internal/flow"
	"learning-chat-service/internal/i18n"
	"learning-chat-service/internal/lock"
	"learning-chat-service/internal/models"
	"learning-chat-service/internal/repository"
)

const (
	// ExercisesPerSegment completed exercises advance the segment, unless the
	// interest segment has fewer exercises in total.
	ExercisesPerSegment = 2
	// MinPassingScore is the pass threshold for attempts and reviews.
	MinPassingScore = 70
	// MaxInterventionMistakes bounds the mistakes listed in the
	// module-completion review.
	MaxInterventionMistakes = 5

	// summarizeAfterMessages is the un-summarized message count that triggers
	// a new conversation summary.
	summarizeAfterMessages = 20

	backgroundTimeout = 2 * time.Minute
)

// FlowResult is what every orchestrator operation returns: the emitted chat
// message, the session after the operation, and what the client may do next.
type FlowResult struct {
	Message        *models.ChatMessage `json:"message"`
	Session        *models.ChatSession `json:"session"`
	AllowedActions []flow.Action       `json:"allowed_actions"`
	Exercise       *models.Exercise    `json:"exercise,omitempty"`
}

// FlowService drives the learning chat flow. Every public operation loads the
// ACTIVE session for (learner, module), holds its lock for the duration, and
// persists in the order attempt, progress, message.
type FlowService struct {
	Sessions  SessionStore
	Attempts  AttemptStore
	Messages  MessageStore
	Content   ContentProvider
	Validator Validator
	Feedback  FeedbackGenerator
	ASR       Transcriber
	Audio     AudioStore
	Summaries Summarizer
	Locker    lock.SessionLocker
	Publisher Publisher

	// Rand picks the next exercise; injected so tests are deterministic.
	Rand *rand.Rand

	bg sync.WaitGroup
}

func NewFlowService(sessions SessionStore, attempts AttemptStore, messages MessageStore, content ContentProvider, validator Validator, feedback FeedbackGenerator, asr Transcriber, audio AudioStore, locker lock.SessionLocker, publisher Publisher) *FlowService {
	return &FlowService{
		Sessions:  sessions,
		Attempts:  attempts,
		Messages:  messages,
		Content:   content,
		Validator: validator,
		Feedback:  feedback,
		ASR:       asr,
		Audio:     audio,
		Locker:    locker,
		Publisher: publisher,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WaitBackground blocks until detached uploads and patches have finished.
func (s *FlowService) WaitBackground() {
	s.bg.Wait()
}

// lockedSession loads the ACTIVE session and takes its lock. The caller must
// invoke release.
func (s *FlowService) lockedSession(ctx context.Context, learnerID, moduleID int64) (*models.ChatSession, func(), error) {
	session, err := s.Sessions.GetActive(ctx, learnerID, moduleID)
	if err != nil {
		return nil, nil, err
	}
	release, err := s.Locker.Acquire(ctx, session.SessionID)
	if err != nil {
		return nil, nil, err
	}
	// Re-read under the lock; another request may have advanced the cursor
	// between the lookup and the acquire.
	session, err = s.Sessions.GetBySessionID(ctx, session.SessionID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return session, release, nil
}

func (s *FlowService) language(ctx context.Context, learnerID int64) models.Language {
	prefs, err := s.Content.LearnerPreferences(ctx, learnerID)
	if err != nil {
		return models.LangEnglish
	}
	return prefs.Language
}

func snapshotOf(lc models.LearningContext) flow.Snapshot {
	return flow.Snapshot{
		SegmentCount:          len(lc.SegmentIDs),
		CompletedSegmentCount: len(lc.CompletedSegmentIDs),
	}
}

func (s *FlowService) result(session *models.ChatSession, msg *models.ChatMessage) *FlowResult {
	return &FlowResult{
		Message:        msg,
		Session:        session,
		AllowedActions: flow.AllowedActions(flow.State(session.State), snapshotOf(session.LearningContext)),
	}
}

// emit persists a system message, bumps the message counter and fires the
// summarization trigger.
func (s *FlowService) emit(ctx context.Context, session *models.ChatSession, msg *models.ChatMessage) (*models.ChatSession, error) {
	msg.SessionID = session.SessionID
	msg.LearnerID = session.LearnerID
	msg.ModuleID = session.LearningContext.ModuleID
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	updated, err := s.Sessions.BumpStats(ctx, session.SessionID, models.StatsDelta{Messages: 1})
	if err != nil {
		return nil, err
	}
	s.maybeSummarize(ctx, updated)
	return updated, nil
}

// BeginModule seeds the segment list and resets the progress cursor. Calling
// it on an already-seeded session re-emits the welcome without reseeding.
func (s *FlowService) BeginModule(ctx context.Context, learnerID, moduleID int64) (*FlowResult, error) {
	session, release, err := s.lockedSession(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	lang := s.language(ctx, learnerID)
	lc := session.LearningContext

	if _, err := flow.Transition(flow.State(session.State), flow.ActionBeginModule, snapshotOf(lc)); err != nil {
		return nil, err
	}

	if len(lc.SegmentIDs) == 0 {
		ids, err := s.Content.SegmentIDs(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			msg := &models.ChatMessage{
				Type:    models.MsgSystemModuleInfo,
				Content: i18n.Message(i18n.NoSegmentsFound, lang, moduleID),
			}
			session, err = s.emit(ctx, session, msg)
			if err != nil {
				return nil, err
			}
			return s.result(session, msg), nil
		}

		lc.SegmentIDs = ids
		lc.CurrentSegmentIndex = 0
		lc.CompletedSegmentIDs = []int64{}
		lc.CompletedExerciseIDs = []int64{}
		if lc.ExercisesPerSegment == 0 {
			lc.ExercisesPerSegment = ExercisesPerSegment
		}
		if lc.SelectedInterest == "" {
			if prefs, err := s.Content.LearnerPreferences(ctx, learnerID); err == nil && len(prefs.Interests) > 0 {
				lc.SelectedInterest = prefs.Interests[lc.InterestIndex%len(prefs.Interests)]
			}
		}
		if _, err := s.Sessions.MergeProgress(ctx, session.SessionID, lc); err != nil {
			return nil, err
		}
	}

	session, err = s.Sessions.SetState(ctx, session.SessionID, string(flow.StateModuleWelcome))
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		Type:       models.MsgSystemModuleInfo,
		Content:    i18n.Message(i18n.ModuleWelcome, lang, lc.Module.Title, len(lc.SegmentIDs)),
		ContentRef: &models.ContentReference{ID: moduleID, Type: models.RefModule},
	}
	session, err = s.emit(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	_ = s.publish(event.ModuleBegun, map[string]interface{}{
		"learner_id": learnerID,
		"module_id":  moduleID,
		"session_id": session.SessionID,
	})
	return s.result(session, msg), nil
}

// NextSegment serves the next resolvable segment and advances the cursor past
// it. Segment ids that no longer resolve are skipped permanently. When the
// cursor is exhausted the module completes with a remediation review.
func (s *FlowService) NextSegment(ctx context.Context, learnerID, moduleID int64) (*FlowResult, error) {
	session, release, err := s.lockedSession(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	lang := s.language(ctx, learnerID)
	lc := session.LearningContext

	next, err := flow.Transition(flow.State(session.State), flow.ActionNextSegment, snapshotOf(lc))
	if err != nil {
		return nil, err
	}
	if next == flow.StateModuleComplete || lc.CurrentSegmentIndex >= len(lc.SegmentIDs) {
		return s.completeModule(ctx, session, lc, lang)
	}

	// Bounded forward scan: a stored id that 404s is skipped and the skip is
	// persisted through the cursor.
	var segment *models.Segment
	idx := lc.CurrentSegmentIndex
	for attempts := 0; idx < len(lc.SegmentIDs) && attempts < len(lc.SegmentIDs); attempts++ {
		seg, err := s.Content.GetSegment(ctx, lc.SegmentIDs[idx], lang)
		if err == nil {
			segment = seg
			break
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[FLOW] segment %d unresolvable, skipping: %v", lc.SegmentIDs[idx], err)
		}
		idx++
	}
	if segment == nil {
		lc.CurrentSegmentIndex = len(lc.SegmentIDs)
		return s.completeModule(ctx, session, lc, lang)
	}

	lc.CurrentSegmentID = segment.ID
	lc.CurrentSegmentIndex = idx + 1
	lc.CurrentInterestSegmentID = 0
	lc.CurrentExerciseID = 0

	content := segment.TheoryContent
	interestSegments, err := s.Content.InterestSegmentsFor(ctx, segment.ID, lang)
	if err != nil {
		return nil, err
	}
	if len(interestSegments) > 0 {
		chosen := interestSegments[0]
		for _, is := range interestSegments {
			if is.Interest == lc.SelectedInterest {
				chosen = is
				break
			}
		}
		lc.CurrentInterestSegmentID = chosen.ID
		if chosen.Content != "" {
			content = chosen.Content
		}
	}

	if _, err := s.Sessions.MergeProgress(ctx, session.SessionID, lc); err != nil {
		return nil, err
	}
	session, err = s.Sessions.SetState(ctx, session.SessionID, string(next))
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		Type:       models.MsgSystemSegmentContent,
		Content:    content,
		ContentRef: &models.ContentReference{ID: segment.ID, Type: models.RefSegment},
	}
	session, err = s.emit(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	_ = s.publish(event.SegmentServed, map[string]interface{}{
		"learner_id": learnerID,
		"module_id":  moduleID,
		"segment_id": segment.ID,
	})
	return s.result(session, msg), nil
}

// NextExercise picks a random not-yet-completed exercise from the current
// interest segment.
func (s *FlowService) NextExercise(ctx context.Context, learnerID, moduleID int64) (*FlowResult, error) {
	session, release, err := s.lockedSession(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	lang := s.language(ctx, learnerID)
	lc := session.LearningContext

	if lc.CurrentInterestSegmentID == 0 {
		msg := &models.ChatMessage{
			Type:    models.MsgSystemExercisePrompt,
			Content: i18n.Message(i18n.NoCurrentInterestSegment, lang),
		}
		session, err = s.emit(ctx, session, msg)
		if err != nil {
			return nil, err
		}
		return s.result(session, msg), nil
	}

	next, err := flow.Transition(flow.State(session.State), flow.ActionStartExercise, snapshotOf(lc))
	if err != nil {
		return nil, err
	}

	exercises, err := s.Content.ExercisesFor(ctx, lc.CurrentInterestSegmentID, lang)
	if err != nil {
		return nil, err
	}
	if len(exercises) == 0 {
		msg := &models.ChatMessage{
			Type:    models.MsgSystemExercisePrompt,
			Content: i18n.Message(i18n.NoExercisesFound, lang, lc.CurrentInterestSegmentID),
		}
		session, err = s.emit(ctx, session, msg)
		if err != nil {
			return nil, err
		}
		return s.result(session, msg), nil
	}

	completed := make(map[int64]bool, len(lc.CompletedExerciseIDs))
	for _, id := range lc.CompletedExerciseIDs {
		completed[id] = true
	}
	var remaining []models.Exercise
	for _, ex := range exercises {
		if !completed[ex.ID] {
			remaining = append(remaining, ex)
		}
	}
	if len(remaining) == 0 {
		msg := &models.ChatMessage{
			Type:    models.MsgSystemExercisePrompt,
			Content: i18n.Message(i18n.AllExercisesCompleted, lang),
		}
		session, err = s.emit(ctx, session, msg)
		if err != nil {
			return nil, err
		}
		return s.result(session, msg), nil
	}

	exercise := remaining[s.Rand.Intn(len(remaining))]
	lc.CurrentExerciseID = exercise.ID

	if _, err := s.Sessions.MergeProgress(ctx, session.SessionID, lc); err != nil {
		return nil, err
	}
	session, err = s.Sessions.SetState(ctx, session.SessionID, string(next))
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		Type:    models.MsgSystemExercisePrompt,
		Content: exercise.Title,
		ExerciseRef: &models.ExerciseReference{
			ExerciseID:        exercise.ID,
			ExerciseType:      exercise.Type,
			InterestSegmentID: lc.CurrentInterestSegmentID,
		},
	}
	session, err = s.emit(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	_ = s.publish(event.ExerciseServed, map[string]interface{}{
		"learner_id":  learnerID,
		"module_id":   moduleID,
		"exercise_id": exercise.ID,
	})
	res := s.result(session, msg)
	res.Exercise = &exercise
	return res, nil
}

// SubmitAnswer grades the current exercise, records the attempt, and decides
// whether the segment advances.
func (s *FlowService) SubmitAnswer(ctx context.Context, learnerID, moduleID int64, answer models.Answer, timeSpent, hintsUsed int) (*FlowResult, error) {
	session, release, err := s.lockedSession(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	lang := s.language(ctx, learnerID)
	lc := session.LearningContext

	next, err := flow.Transition(flow.State(session.State), flow.ActionSubmitAnswer, snapshotOf(lc))
	if err != nil {
		return nil, err
	}
	exercise, err := s.Content.GetExercise(ctx, lc.CurrentExerciseID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.Validator.Validate(ctx, exercise, answer, lang)
	if err != nil {
		return nil, fmt.Errorf("validate exercise %d: %w", exercise.ID, err)
	}

	attempt := &models.ExerciseAttempt{
		LearnerID:    learnerID,
		ExerciseID:   exercise.ID,
		ExerciseType: exercise.Type,
		Answer:       answer,
		IsCorrect:    verdict.IsCorrect,
		Score:        verdict.Score,
		TimeSpent:    timeSpent,
		HintsUsed:    hintsUsed,
	}
	if err := s.Attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	feedbackText, err := s.Feedback.Generate(ctx, exercise, answer, verdict.IsCorrect, verdict.Score, lang)
	if err != nil {
		return nil, fmt.Errorf("generate feedback: %w", err)
	}

	return s.finishSubmission(ctx, session, lc, lang, exercise, attempt, feedbackText, string(next))
}

// SubmitPronunciation handles the audio submission. "I don't know" records a
// zero-score attempt without calling ASR or the validator; both paths upload
// the raw audio in the background and patch the attempt afterwards.
func (s *FlowService) SubmitPronunciation(ctx context.Context, learnerID, moduleID int64, audio []byte, mimeType string, isDontKnow bool, timeSpent int) (*FlowResult, error) {
	session, release, err := s.lockedSession(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	lang := s.language(ctx, learnerID)
	lc := session.LearningContext

	next, err := flow.Transition(flow.State(session.State), flow.ActionSubmitAnswer, snapshotOf(lc))
	if err != nil {
		return nil, err
	}
	exercise, err := s.Content.GetExercise(ctx, lc.CurrentExerciseID)
	if err != nil {
		return nil, err
	}

	var (
		attempt      *models.ExerciseAttempt
		feedbackText string
		asrResult    *models.ASRResult
	)

	if isDontKnow {
		attempt = &models.ExerciseAttempt{
			LearnerID:    learnerID,
			ExerciseID:   exercise.ID,
			ExerciseType: exercise.Type,
			Answer:       models.NoAnswer(),
			IsCorrect:    false,
			Score:        0,
			TimeSpent:    timeSpent,
		}
		if err := s.Attempts.Create(ctx, attempt); err != nil {
			return nil, err
		}
		feedbackText = i18n.Message(i18n.DontKnowFeedback, lang)
	} else {
		asrResult, err = s.ASR.Transcribe(ctx, audio, string(lang))
		if err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
		answer := models.SpeechAnswerOf(asrResult.Transcript, asrResult.Confidence)

		verdict, err := s.Validator.Validate(ctx, exercise, answer, lang)
		if err != nil {
			return nil, fmt.Errorf("validate exercise %d: %w", exercise.ID, err)
		}

		attempt = &models.ExerciseAttempt{
			LearnerID:    learnerID,
			ExerciseID:   exercise.ID,
			ExerciseType: exercise.Type,
			Answer:       answer,
			IsCorrect:    verdict.IsCorrect,
			Score:        verdict.Score,
			TimeSpent:    timeSpent,
		}
		if err := s.Attempts.Create(ctx, attempt); err != nil {
			return nil, err
		}

		feedbackText, err = s.Feedback.Generate(ctx, exercise, answer, verdict.IsCorrect, verdict.Score, lang)
		if err != nil {
			return nil, fmt.Errorf("generate feedback: %w", err)
		}
	}

	s.uploadAudioDetached(attempt, audio, mimeType, asrResult)

	return s.finishSubmission(ctx, session, lc, lang, exercise, attempt, feedbackText, string(next))
}

// finishSubmission is the tail shared by both submission paths: mark the
// exercise completed, decide segment advancement, commit the transition, and
// emit the answer and feedback messages.
func (s *FlowService) finishSubmission(ctx context.Context, session *models.ChatSession, lc models.LearningContext, lang models.Language, exercise *models.Exercise, attempt *models.ExerciseAttempt, feedbackText, nextState string) (*FlowResult, error) {
	lc.CompletedExerciseIDs = appendUnique(lc.CompletedExerciseIDs, exercise.ID)

	advanced, err := s.decideAdvancement(ctx, &lc, lang, session.LearnerID)
	if err != nil {
		return nil, err
	}

	if _, err := s.Sessions.MergeProgress(ctx, session.SessionID, lc); err != nil {
		return nil, err
	}
	session, err = s.Sessions.SetState(ctx, session.SessionID, nextState)
	if err != nil {
		return nil, err
	}

	answerMsg := &models.ChatMessage{
		SessionID: session.SessionID,
		LearnerID: session.LearnerID,
		ModuleID:  lc.ModuleID,
		Type:      models.MsgUserExerciseAnswer,
		Content:   answerText(attempt.Answer),
		UserAnswer: &models.UserAnswer{
			ExerciseID:  exercise.ID,
			Answer:      attempt.Answer,
			IsCorrect:   attempt.IsCorrect,
			Score:       attempt.Score,
			SubmittedAt: time.Now(),
		},
	}
	if err := s.Messages.Create(ctx, answerMsg); err != nil {
		return nil, err
	}

	feedbackMsg := &models.ChatMessage{
		SessionID: session.SessionID,
		LearnerID: session.LearnerID,
		ModuleID:  lc.ModuleID,
		Type:      models.MsgAIResponse,
		Content:   feedbackText,
		ExerciseRef: &models.ExerciseReference{
			ExerciseID:   exercise.ID,
			ExerciseType: exercise.Type,
		},
	}
	if err := s.Messages.Create(ctx, feedbackMsg); err != nil {
		return nil, err
	}

	session, err = s.Sessions.BumpStats(ctx, session.SessionID, models.StatsDelta{
		Messages:           2,
		UserMessages:       1,
		ExercisesCompleted: 1,
		Score:              attempt.Score,
	})
	if err != nil {
		return nil, err
	}
	s.maybeSummarize(ctx, session)

	_ = s.publish(event.AnswerSubmitted, map[string]interface{}{
		"learner_id":       session.LearnerID,
		"module_id":        lc.ModuleID,
		"exercise_id":      exercise.ID,
		"score":            attempt.Score,
		"is_correct":       attempt.IsCorrect,
		"attempt_number":   attempt.AttemptNumber,
		"segment_advanced": advanced,
	})
	return s.result(session, feedbackMsg), nil
}

// decideAdvancement recomputes completed-in-segment against the current
// interest segment's exercise set. The segment advances when the count hits
// the per-segment policy or everything available was done.
func (s *FlowService) decideAdvancement(ctx context.Context, lc *models.LearningContext, lang models.Language, learnerID int64) (bool, error) {
	exercises, err := s.Content.ExercisesFor(ctx, lc.CurrentInterestSegmentID, lang)
	if err != nil {
		return false, err
	}

	completed := make(map[int64]bool, len(lc.CompletedExerciseIDs))
	for _, id := range lc.CompletedExerciseIDs {
		completed[id] = true
	}
	doneInSegment := 0
	for _, ex := range exercises {
		if completed[ex.ID] {
			doneInSegment++
		}
	}

	perSegment := lc.ExercisesPerSegment
	if perSegment == 0 {
		perSegment = ExercisesPerSegment
	}
	if doneInSegment < perSegment && doneInSegment != len(exercises) {
		lc.CurrentExerciseID = 0
		return false, nil
	}

	lc.CompletedSegmentIDs = appendUnique(lc.CompletedSegmentIDs, lc.CurrentSegmentID)
	lc.CurrentSegmentID = 0
	lc.CurrentInterestSegmentID = 0
	lc.CurrentExerciseID = 0

	if prefs, err := s.Content.LearnerPreferences(ctx, learnerID); err == nil && len(prefs.Interests) > 0 {
		lc.InterestIndex = (lc.InterestIndex + 1) % len(prefs.Interests)
		lc.SelectedInterest = prefs.Interests[lc.InterestIndex]
	}
	return true, nil
}

// completeModule forces the terminal state, emits the remediation review and
// fires the vocabulary side effect.
func (s *FlowService) completeModule(ctx context.Context, session *models.ChatSession, lc models.LearningContext, lang models.Language) (*FlowResult, error) {
	review, err := s.remediationSummary(ctx, session.LearnerID, lc, lang)
	if err != nil {
		return nil, err
	}

	if _, err := s.Sessions.MergeProgress(ctx, session.SessionID, lc); err != nil {
		return nil, err
	}
	session, err = s.Sessions.SetState(ctx, session.SessionID, string(flow.StateModuleComplete))
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		Type:       models.MsgSystemModuleInfo,
		Content:    i18n.Message(i18n.ModuleComplete, lang) + "\n" + review,
		ContentRef: &models.ContentReference{ID: lc.ModuleID, Type: models.RefModule},
	}
	session, err = s.emit(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	_ = s.publish(event.ModuleCompleted, map[string]interface{}{
		"learner_id": session.LearnerID,
		"module_id":  lc.ModuleID,
		"session_id": session.SessionID,
	})
	_ = s.publish(event.VocabularyAppend, map[string]interface{}{
		"learner_id": session.LearnerID,
		"module_id":  lc.ModuleID,
		"language":   lang,
	})
	return s.result(session, msg), nil
}

// remediationSummary reviews the learner's latest attempt per exercise across
// the whole module and lists the ones below the pass threshold.
func (s *FlowService) remediationSummary(ctx context.Context, learnerID int64, lc models.LearningContext, lang models.Language) (string, error) {
	var exercises []models.Exercise
	for _, segID := range lc.SegmentIDs {
		segExercises, err := s.Content.ExercisesForSegment(ctx, segID)
		if err != nil {
			return "", err
		}
		exercises = append(exercises, segExercises...)
	}
	if len(exercises) == 0 {
		return i18n.Message(i18n.ReviewNoExercises, lang), nil
	}

	ids := make([]int64, 0, len(exercises))
	for _, ex := range exercises {
		ids = append(ids, ex.ID)
	}
	attempts, err := s.Attempts.FindByLearner(ctx, learnerID, ids)
	if err != nil {
		return "", err
	}
	if len(attempts) == 0 {
		return i18n.Message(i18n.ReviewNoAttempts, lang), nil
	}

	// Attempts arrive newest first, so the first hit per exercise is the
	// latest attempt.
	latest := make(map[int64]models.ExerciseAttempt, len(exercises))
	for _, a := range attempts {
		if _, seen := latest[a.ExerciseID]; !seen {
			latest[a.ExerciseID] = a
		}
	}

	type mistake struct {
		title string
		id    int64
		score int
	}
	var mistakes []mistake
	for _, ex := range exercises {
		a, attempted := latest[ex.ID]
		if !attempted {
			continue
		}
		if a.Score < MinPassingScore {
			mistakes = append(mistakes, mistake{title: ex.Title, id: ex.ID, score: a.Score})
		}
	}
	if len(mistakes) == 0 {
		return i18n.Message(i18n.ReviewNoMistakes, lang), nil
	}

	shown := mistakes
	if len(shown) > MaxInterventionMistakes {
		shown = shown[:MaxInterventionMistakes]
	}
	var b strings.Builder
	for _, m := range shown {
		fmt.Fprintf(&b, "- %s (#%d): %d%%\n", m.title, m.id, m.score)
	}
	if len(mistakes) > MaxInterventionMistakes {
		b.WriteString(i18n.Message(i18n.ReviewMoreMistakes, lang, len(mistakes)-MaxInterventionMistakes, MinPassingScore))
		b.WriteString("\n")
	}
	return i18n.Message(i18n.ModuleReviewPrompt, lang, strings.TrimRight(b.String(), "\n")), nil
}

// uploadAudioDetached stores the raw audio and patches the attempt with the
// object key and ASR metadata. Failures are logged, never surfaced, and never
// block the originating request.
func (s *FlowService) uploadAudioDetached(attempt *models.ExerciseAttempt, audio []byte, mimeType string, asrResult *models.ASRResult) {
	if s.Audio == nil || len(audio) == 0 {
		return
	}
	key := fmt.Sprintf("pronunciation/%d/%d/%d.%s", attempt.LearnerID, attempt.ExerciseID, attempt.AttemptNumber, audioExt(mimeType))
	attemptID := attempt.ID

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		stored, err := s.Audio.UploadAudio(ctx, key, audio, mimeType)
		if err != nil {
			log.Printf("[FLOW] audio upload for attempt %s failed: %v", attemptID, err)
		} else if err := s.Attempts.PatchAudioKey(ctx, attemptID, stored); err != nil {
			log.Printf("[FLOW] audio key patch for attempt %s failed: %v", attemptID, err)
		}

		if asrResult != nil {
			if err := s.Attempts.PatchASRResult(ctx, attemptID, *asrResult); err != nil {
				log.Printf("[FLOW] asr patch for attempt %s failed: %v", attemptID, err)
			}
		}
	}()
}

// maybeSummarize triggers a conversation summary when enough un-summarized
// messages piled up. Duplicate triggers are resolved by the store's overlap
// guard, so racing here is harmless.
func (s *FlowService) maybeSummarize(ctx context.Context, session *models.ChatSession) {
	if s.Summaries == nil || session == nil {
		return
	}

	var since time.Time
	if n := len(session.ConversationSummaries); n > 0 {
		since = session.ConversationSummaries[n-1].To
	}
	count, err := s.Messages.CountSince(ctx, session.SessionID, since)
	if err != nil || count < summarizeAfterMessages {
		return
	}

	messages, err := s.Messages.FindSince(ctx, session.SessionID, since)
	if err != nil || len(messages) == 0 {
		return
	}
	lang := s.language(ctx, session.LearnerID)
	text, err := s.Summaries.Summarize(ctx, messages, lang)
	if err != nil {
		log.Printf("[FLOW] summarize session %s failed: %v", session.SessionID, err)
		return
	}
	_, err = s.Sessions.AppendConversationSummary(ctx, session.SessionID, models.ConversationSummary{
		Summary: text,
		From:    messages[0].CreatedAt,
		To:      messages[len(messages)-1].CreatedAt,
	})
	if err != nil {
		log.Printf("[FLOW] summary append for session %s failed: %v", session.SessionID, err)
	}
}

func (s *FlowService) publish(routingKey string, payload interface{}) error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.Publish(routingKey, payload)
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func audioExt(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/mp4":
		return "m4a"
	default:
		return "ogg"
	}
}

func answerText(answer models.Answer) string {
	switch answer.Kind {
	case models.AnswerText:
		return answer.Text
	case models.AnswerTexts:
		return strings.Join(answer.Texts, " | ")
	case models.AnswerChoices:
		parts := make([]string, 0, len(answer.Choices))
		for _, c := range answer.Choices {
			parts = append(parts, fmt.Sprintf("%d", c))
		}
		return strings.Join(parts, ", ")
	case models.AnswerSpeech:
		if answer.Speech != nil {
			return answer.Speech.Transcript
		}
	}
	return ""
}
