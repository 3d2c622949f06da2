package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"learning-chat-service/internal/flow"
	"learning-chat-service/internal/lock"
	"learning-chat-service/internal/models"
	"learning-chat-service/internal/repository"
	"learning-chat-service/internal/validation"
)

// ---- fakes ----

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.ChatSession)}
}

func copySession(s *models.ChatSession) *models.ChatSession {
	c := *s
	return &c
}

func (f *fakeSessionStore) Create(_ context.Context, session *models.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.LearnerID == session.LearnerID &&
			s.LearningContext.ModuleID == session.LearningContext.ModuleID &&
			s.Status == models.SessionActive {
			return repository.ErrSessionExists
		}
	}
	session.Version = 1
	f.sessions[session.SessionID] = copySession(session)
	return nil
}

func (f *fakeSessionStore) GetBySessionID(_ context.Context, sessionID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySession(s), nil
}

func (f *fakeSessionStore) GetActive(_ context.Context, learnerID, moduleID int64) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.LearnerID == learnerID && s.LearningContext.ModuleID == moduleID && s.Status == models.SessionActive {
			return copySession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSessionStore) SetState(_ context.Context, sessionID, state string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.State = state
	s.Version++
	return copySession(s), nil
}

func (f *fakeSessionStore) SetStatus(_ context.Context, sessionID string, status models.SessionStatus) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.Status = status
	s.Version++
	return copySession(s), nil
}

func (f *fakeSessionStore) MergeProgress(_ context.Context, sessionID string, lc models.LearningContext) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	lc.LastActivityAt = time.Now()
	s.LearningContext = lc
	s.Version++
	return copySession(s), nil
}

func (f *fakeSessionStore) BumpStats(_ context.Context, sessionID string, delta models.StatsDelta) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.Stats.TotalMessages += delta.Messages
	s.Stats.UserMessages += delta.UserMessages
	s.Stats.ExercisesCompleted += delta.ExercisesCompleted
	s.Stats.TotalScore += delta.Score
	s.Version++
	return copySession(s), nil
}

func (f *fakeSessionStore) AppendConversationSummary(_ context.Context, sessionID string, summary models.ConversationSummary) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	summary.CreatedAt = time.Now()
	s.ConversationSummaries = append(s.ConversationSummaries, summary)
	return copySession(s), nil
}

func (f *fakeSessionStore) FindByModuleIDsAndState(_ context.Context, learnerID int64, moduleIDs []int64, state string) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSession
	for _, s := range f.sessions {
		if s.LearnerID != learnerID || s.State != state {
			continue
		}
		for _, id := range moduleIDs {
			if s.LearningContext.ModuleID == id {
				out = append(out, *copySession(s))
				break
			}
		}
	}
	return out, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*models.ExerciseAttempt
}

func (f *fakeAttemptStore) Create(_ context.Context, attempt *models.ExerciseAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.attempts {
		if a.LearnerID == attempt.LearnerID && a.ExerciseID == attempt.ExerciseID {
			count++
		}
	}
	attempt.AttemptNumber = count + 1
	attempt.CreatedAt = time.Now()
	attempt.ID = fmt.Sprintf("attempt-%d", len(f.attempts)+1)
	stored := *attempt
	f.attempts = append(f.attempts, &stored)
	return nil
}

func (f *fakeAttemptStore) FindByLearner(_ context.Context, learnerID int64, exerciseIDs []int64) ([]models.ExerciseAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[int64]bool, len(exerciseIDs))
	for _, id := range exerciseIDs {
		wanted[id] = true
	}
	var out []models.ExerciseAttempt
	for i := len(f.attempts) - 1; i >= 0; i-- {
		a := f.attempts[i]
		if a.LearnerID != learnerID {
			continue
		}
		if len(exerciseIDs) > 0 && !wanted[a.ExerciseID] {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAttemptStore) PatchAudioKey(_ context.Context, attemptID, audioKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ID == attemptID {
			a.AudioKey = audioKey
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeAttemptStore) PatchASRResult(_ context.Context, attemptID string, asr models.ASRResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ID == attemptID {
			a.ASRResult = &asr
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeAttemptStore) byExercise(exerciseID int64) []*models.ExerciseAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ExerciseAttempt
	for _, a := range f.attempts {
		if a.ExerciseID == exerciseID {
			out = append(out, a)
		}
	}
	return out
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	clock    time.Time
}

func (f *fakeMessageStore) Create(_ context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clock.IsZero() {
		f.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	f.clock = f.clock.Add(time.Second)
	msg.CreatedAt = f.clock
	msg.ID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageStore) FindBySession(_ context.Context, sessionID string, limit, offset int64) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) CountSince(_ context.Context, sessionID string, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.SessionID == sessionID && m.CreatedAt.After(t) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) FindSince(_ context.Context, sessionID string, t time.Time) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.messages {
		if m.SessionID == sessionID && m.CreatedAt.After(t) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeContent struct {
	modules      map[int64]*models.Module
	segmentIDs   map[int64][]int64
	segments     map[int64]*models.Segment
	interestSegs map[int64][]models.InterestSegment
	exercises    map[int64][]models.Exercise
	learners     map[int64]*models.LearnerPreferences
}

func (f *fakeContent) GetModule(_ context.Context, moduleID int64) (*models.Module, error) {
	m, ok := f.modules[moduleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeContent) NextModule(_ context.Context, moduleID int64) (*models.Module, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeContent) SegmentIDs(_ context.Context, moduleID int64) ([]int64, error) {
	return f.segmentIDs[moduleID], nil
}

func (f *fakeContent) GetSegment(_ context.Context, segmentID int64, _ models.Language) (*models.Segment, error) {
	s, ok := f.segments[segmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeContent) InterestSegmentsFor(_ context.Context, segmentID int64, _ models.Language) ([]models.InterestSegment, error) {
	return f.interestSegs[segmentID], nil
}

func (f *fakeContent) ExercisesFor(_ context.Context, interestSegmentID int64, _ models.Language) ([]models.Exercise, error) {
	return f.exercises[interestSegmentID], nil
}

func (f *fakeContent) ExercisesForSegment(_ context.Context, segmentID int64) ([]models.Exercise, error) {
	var out []models.Exercise
	for _, is := range f.interestSegs[segmentID] {
		out = append(out, f.exercises[is.ID]...)
	}
	return out, nil
}

func (f *fakeContent) GetExercise(_ context.Context, exerciseID int64) (*models.Exercise, error) {
	for _, list := range f.exercises {
		for _, ex := range list {
			if ex.ID == exerciseID {
				found := ex
				return &found, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeContent) LearnerPreferences(_ context.Context, learnerID int64) (*models.LearnerPreferences, error) {
	p, ok := f.learners[learnerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type fakeValidator struct {
	mu    sync.Mutex
	calls int
	score int
}

func (f *fakeValidator) Validate(_ context.Context, _ *models.Exercise, _ models.Answer, _ models.Language) (*validation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &validation.Result{IsCorrect: f.score >= MinPassingScore, Score: f.score}, nil
}

type fakeFeedback struct{}

func (fakeFeedback) Generate(_ context.Context, _ *models.Exercise, _ models.Answer, _ bool, score int, _ models.Language) (string, error) {
	return fmt.Sprintf("Score: %d%%", score), nil
}

type fakeASR struct {
	mu         sync.Mutex
	calls      int
	transcript string
}

func (f *fakeASR) Transcribe(_ context.Context, _ []byte, _ string) (*models.ASRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &models.ASRResult{Transcript: f.transcript, Confidence: 0.9, Model: "fake"}, nil
}

type fakeAudio struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeAudio) UploadAudio(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ []models.ChatMessage, _ models.Language) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "summary", nil
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePublisher) Publish(routingKey string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	return nil
}

// ---- fixture ----

const (
	testLearner = int64(7)
	testModule  = int64(1)
)

type fixture struct {
	sessions  *fakeSessionStore
	attempts  *fakeAttemptStore
	messages  *fakeMessageStore
	content   *fakeContent
	validator *fakeValidator
	asr       *fakeASR
	audio     *fakeAudio
	publisher *fakePublisher
	svc       *FlowService
}

// newFixture builds a three-segment module. Interest segment 201 under
// segment 101 carries exercises 301..303; 202 under 102 carries 304, 305;
// 203 under 103 carries 306, 307.
func newFixture() *fixture {
	content := &fakeContent{
		modules: map[int64]*models.Module{
			testModule: {ID: testModule, Title: "Basics", Order: 1, Status: "PUBLISHED"},
		},
		segmentIDs: map[int64][]int64{testModule: {101, 102, 103}},
		segments: map[int64]*models.Segment{
			101: {ID: 101, ModuleID: testModule, Title: "One", TheoryContent: "theory one"},
			102: {ID: 102, ModuleID: testModule, Title: "Two", TheoryContent: "theory two"},
			103: {ID: 103, ModuleID: testModule, Title: "Three", TheoryContent: "theory three"},
		},
		interestSegs: map[int64][]models.InterestSegment{
			101: {{ID: 201, SegmentID: 101, Interest: "A", Content: "themed one"}},
			102: {{ID: 202, SegmentID: 102, Interest: "A", Content: "themed two"}},
			103: {{ID: 203, SegmentID: 103, Interest: "A", Content: "themed three"}},
		},
		exercises: map[int64][]models.Exercise{
			201: {
				{ID: 301, InterestSegmentID: 201, Type: models.ExerciseMultipleChoice, Title: "Ex 301"},
				{ID: 302, InterestSegmentID: 201, Type: models.ExerciseCloze, Title: "Ex 302"},
				{ID: 303, InterestSegmentID: 201, Type: models.ExerciseDictation, Title: "Ex 303"},
			},
			202: {
				{ID: 304, InterestSegmentID: 202, Type: models.ExercisePronunciation, Title: "Ex 304", Transcript: "hello"},
				{ID: 305, InterestSegmentID: 202, Type: models.ExerciseFlashcard, Title: "Ex 305"},
			},
			203: {
				{ID: 306, InterestSegmentID: 203, Type: models.ExerciseMultipleChoice, Title: "Ex 306"},
				{ID: 307, InterestSegmentID: 203, Type: models.ExerciseCloze, Title: "Ex 307"},
			},
		},
		learners: map[int64]*models.LearnerPreferences{
			testLearner: {Language: models.LangEnglish, Interests: []string{"A", "B"}},
		},
	}

	f := &fixture{
		sessions:  newFakeSessionStore(),
		attempts:  &fakeAttemptStore{},
		messages:  &fakeMessageStore{},
		content:   content,
		validator: &fakeValidator{score: 80},
		asr:       &fakeASR{transcript: "hello"},
		audio:     &fakeAudio{},
		publisher: &fakePublisher{},
	}
	f.svc = &FlowService{
		Sessions:  f.sessions,
		Attempts:  f.attempts,
		Messages:  f.messages,
		Content:   content,
		Validator: f.validator,
		Feedback:  fakeFeedback{},
		ASR:       f.asr,
		Audio:     f.audio,
		Locker:    lock.NewMemoryLocker(),
		Publisher: f.publisher,
		Rand:      rand.New(rand.NewSource(1)),
	}
	return f
}

func (f *fixture) seedSession(state flow.State, lc models.LearningContext) *models.ChatSession {
	lc.ModuleID = testModule
	lc.Module = models.ModuleSnapshot{ID: testModule, Title: "Basics", Order: 1}
	if lc.ExercisesPerSegment == 0 {
		lc.ExercisesPerSegment = ExercisesPerSegment
	}
	session := &models.ChatSession{
		SessionID:       "sess-1",
		LearnerID:       testLearner,
		Type:            models.SessionLearningFlow,
		Status:          models.SessionActive,
		State:           string(state),
		LearningContext: lc,
		StartedAt:       time.Now(),
	}
	if err := f.sessions.Create(context.Background(), session); err != nil {
		panic(err)
	}
	return session
}

func (f *fixture) mergeProgress(mutate func(*models.LearningContext)) {
	s, err := f.sessions.GetBySessionID(context.Background(), "sess-1")
	if err != nil {
		panic(err)
	}
	lc := s.LearningContext
	mutate(&lc)
	if _, err := f.sessions.MergeProgress(context.Background(), "sess-1", lc); err != nil {
		panic(err)
	}
}

func (f *fixture) setState(state flow.State) {
	if _, err := f.sessions.SetState(context.Background(), "sess-1", string(state)); err != nil {
		panic(err)
	}
}

// ---- tests ----

func TestModuleWalkthrough(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateModuleWelcome, models.LearningContext{SelectedInterest: "A"})
	ctx := context.Background()

	begin, err := f.svc.BeginModule(ctx, testLearner, testModule)
	if err != nil {
		t.Fatalf("BeginModule: %v", err)
	}
	if got := len(begin.Session.LearningContext.SegmentIDs); got != 3 {
		t.Fatalf("seeded %d segment ids, want 3", got)
	}
	if begin.Session.State != string(flow.StateModuleWelcome) {
		t.Fatalf("state after begin = %s, want MODULE_WELCOME", begin.Session.State)
	}
	if !strings.Contains(begin.Message.Content, "Basics") {
		t.Errorf("welcome message %q should name the module", begin.Message.Content)
	}

	wantContent := []string{"themed one", "themed two", "themed three"}
	for i, want := range wantContent {
		res, err := f.svc.NextSegment(ctx, testLearner, testModule)
		if err != nil {
			t.Fatalf("NextSegment #%d: %v", i+1, err)
		}
		if res.Session.State != string(flow.StateSegmentContent) {
			t.Fatalf("NextSegment #%d state = %s, want SEGMENT_CONTENT", i+1, res.Session.State)
		}
		if res.Message.Content != want {
			t.Errorf("NextSegment #%d content = %q, want %q", i+1, res.Message.Content, want)
		}
	}

	final, err := f.svc.NextSegment(ctx, testLearner, testModule)
	if err != nil {
		t.Fatalf("final NextSegment: %v", err)
	}
	if final.Session.State != string(flow.StateModuleComplete) {
		t.Fatalf("final state = %s, want MODULE_COMPLETE", final.Session.State)
	}
	if !strings.Contains(final.Message.Content, "No exercises attempted yet.") {
		t.Errorf("zero attempts should yield the no-attempts review, got %q", final.Message.Content)
	}
	if len(final.AllowedActions) != 0 {
		t.Errorf("terminal state should allow no actions, got %v", final.AllowedActions)
	}
}

func TestNextSegmentSkipsUnresolvable(t *testing.T) {
	f := newFixture()
	delete(f.content.segments, 101)
	f.seedSession(flow.StateModuleWelcome, models.LearningContext{
		SegmentIDs:       []int64{101, 102, 103},
		SelectedInterest: "A",
	})

	res, err := f.svc.NextSegment(context.Background(), testLearner, testModule)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	if res.Message.Content != "themed two" {
		t.Errorf("content = %q, want segment 102 after skipping 101", res.Message.Content)
	}
	if got := res.Session.LearningContext.CurrentSegmentID; got != 102 {
		t.Errorf("current segment = %d, want 102", got)
	}
	// The skip is persisted: the cursor sits past the served segment.
	if got := res.Session.LearningContext.CurrentSegmentIndex; got != 2 {
		t.Errorf("cursor = %d, want 2", got)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateModuleWelcome, models.LearningContext{SegmentIDs: []int64{101}})

	_, err := f.svc.SubmitAnswer(context.Background(), testLearner, testModule, models.TextAnswer("x"), 0, 0)
	var invalid *flow.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("SubmitAnswer from MODULE_WELCOME: err = %v, want InvalidTransitionError", err)
	}
	if len(f.attempts.attempts) != 0 {
		t.Error("rejected transition must not record an attempt")
	}
}

func TestNextExercisePicksFromRemaining(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateSegmentContent, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         101,
		CurrentInterestSegmentID: 201,
		CurrentSegmentIndex:      1,
		CompletedExerciseIDs:     []int64{301},
	})

	res, err := f.svc.NextExercise(context.Background(), testLearner, testModule)
	if err != nil {
		t.Fatalf("NextExercise: %v", err)
	}
	if res.Session.State != string(flow.StateExercise) {
		t.Fatalf("state = %s, want EXERCISE", res.Session.State)
	}
	picked := res.Session.LearningContext.CurrentExerciseID
	if picked != 302 && picked != 303 {
		t.Errorf("picked exercise %d, want one of the uncompleted 302/303", picked)
	}
	if res.Exercise == nil || res.Exercise.ID != picked {
		t.Errorf("result should carry the picked exercise payload")
	}
}

func TestNextExerciseAllCompleted(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateSegmentContent, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         101,
		CurrentInterestSegmentID: 201,
		CurrentSegmentIndex:      1,
		CompletedExerciseIDs:     []int64{301, 302, 303},
	})

	res, err := f.svc.NextExercise(context.Background(), testLearner, testModule)
	if err != nil {
		t.Fatalf("NextExercise: %v", err)
	}
	if res.Session.State != string(flow.StateSegmentContent) {
		t.Errorf("state = %s, exhausted segment must not change state", res.Session.State)
	}
	if !strings.Contains(res.Message.Content, "All exercises") {
		t.Errorf("message = %q, want the all-completed hint", res.Message.Content)
	}
}

func TestNextExerciseWithoutInterestSegment(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateSegmentContent, models.LearningContext{
		SegmentIDs:          []int64{101, 102, 103},
		CurrentSegmentIndex: 1,
	})

	res, err := f.svc.NextExercise(context.Background(), testLearner, testModule)
	if err != nil {
		t.Fatalf("NextExercise without interest segment should not error, got %v", err)
	}
	if !strings.Contains(res.Message.Content, "next segment first") {
		t.Errorf("message = %q, want the get-next-segment hint", res.Message.Content)
	}
}

func TestSegmentAdvancementAtTwoOfThree(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         101,
		CurrentInterestSegmentID: 201,
		CurrentExerciseID:        301,
		CurrentSegmentIndex:      1,
		SelectedInterest:         "A",
	})
	ctx := context.Background()

	one, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, models.ChoicesAnswer([]int{0}), 10, 0)
	if err != nil {
		t.Fatalf("first SubmitAnswer: %v", err)
	}
	lc := one.Session.LearningContext
	if len(lc.CompletedSegmentIDs) != 0 {
		t.Fatalf("1 of 3 exercises must not advance the segment, completed = %v", lc.CompletedSegmentIDs)
	}
	if lc.CurrentExerciseID != 0 {
		t.Errorf("current exercise should clear between rounds, got %d", lc.CurrentExerciseID)
	}
	if lc.InterestIndex != 0 {
		t.Errorf("interest index moved without advancement: %d", lc.InterestIndex)
	}

	f.setState(flow.StateExercise)
	f.mergeProgress(func(lc *models.LearningContext) { lc.CurrentExerciseID = 302 })

	two, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, models.TextsAnswer([]string{"x"}), 10, 0)
	if err != nil {
		t.Fatalf("second SubmitAnswer: %v", err)
	}
	lc = two.Session.LearningContext
	if len(lc.CompletedSegmentIDs) != 1 || lc.CompletedSegmentIDs[0] != 101 {
		t.Fatalf("2 of 3 exercises must advance, completed = %v", lc.CompletedSegmentIDs)
	}
	if lc.CurrentSegmentID != 0 || lc.CurrentInterestSegmentID != 0 || lc.CurrentExerciseID != 0 {
		t.Errorf("advancement must clear the current ids, got %+v", lc)
	}
	if lc.InterestIndex != 1 || lc.SelectedInterest != "B" {
		t.Errorf("interest should rotate to B, got index %d interest %q", lc.InterestIndex, lc.SelectedInterest)
	}
}

func TestSegmentAdvancementWhenSegmentExhausted(t *testing.T) {
	// Interest segment 203 is cut down to a single exercise, so one
	// submission exhausts it and the segment advances below the policy count.
	f := newFixture()
	f.content.exercises[203] = f.content.exercises[203][:1]
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         103,
		CurrentInterestSegmentID: 203,
		CurrentExerciseID:        306,
		CurrentSegmentIndex:      3,
		SelectedInterest:         "A",
	})

	res, err := f.svc.SubmitAnswer(context.Background(), testLearner, testModule, models.ChoicesAnswer([]int{0}), 5, 0)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	lc := res.Session.LearningContext
	if len(lc.CompletedSegmentIDs) != 1 || lc.CompletedSegmentIDs[0] != 103 {
		t.Fatalf("single-exercise segment must advance on completion, completed = %v", lc.CompletedSegmentIDs)
	}
}

func TestAttemptNumbering(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         101,
		CurrentInterestSegmentID: 201,
		CurrentExerciseID:        301,
		CurrentSegmentIndex:      1,
	})
	ctx := context.Background()

	redo := func(exerciseID int64) {
		f.setState(flow.StateExercise)
		f.mergeProgress(func(lc *models.LearningContext) {
			lc.CurrentExerciseID = exerciseID
			lc.CompletedExerciseIDs = nil
		})
	}

	for i := 1; i <= 2; i++ {
		if _, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, models.ChoicesAnswer([]int{0}), 5, 0); err != nil {
			t.Fatalf("submission %d for 301: %v", i, err)
		}
		redo(302)
		if _, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, models.TextsAnswer([]string{"y"}), 5, 0); err != nil {
			t.Fatalf("interleaved submission for 302: %v", err)
		}
		redo(301)
	}
	if _, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, models.ChoicesAnswer([]int{0}), 5, 0); err != nil {
		t.Fatalf("third submission for 301: %v", err)
	}

	for i, a := range f.attempts.byExercise(301) {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d for 301 numbered %d", i+1, a.AttemptNumber)
		}
	}
	for i, a := range f.attempts.byExercise(302) {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d for 302 numbered %d", i+1, a.AttemptNumber)
		}
	}
}

func TestInterestRotationWraps(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         101,
		CurrentInterestSegmentID: 201,
		CurrentExerciseID:        301,
		CurrentSegmentIndex:      1,
		SelectedInterest:         "A",
	})
	ctx := context.Background()

	submit := func(exerciseID int64, answer models.Answer) *FlowResult {
		t.Helper()
		res, err := f.svc.SubmitAnswer(ctx, testLearner, testModule, answer, 5, 0)
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", exerciseID, err)
		}
		return res
	}

	submit(301, models.ChoicesAnswer([]int{0}))
	f.setState(flow.StateExercise)
	f.mergeProgress(func(lc *models.LearningContext) { lc.CurrentExerciseID = 302 })
	res := submit(302, models.TextsAnswer([]string{"x"}))
	if res.Session.LearningContext.InterestIndex != 1 {
		t.Fatalf("after first segment, interest index = %d, want 1", res.Session.LearningContext.InterestIndex)
	}

	// Second segment: both of interest segment 202's exercises.
	f.setState(flow.StateExercise)
	f.mergeProgress(func(lc *models.LearningContext) {
		lc.CurrentSegmentID = 102
		lc.CurrentInterestSegmentID = 202
		lc.CurrentExerciseID = 304
		lc.CurrentSegmentIndex = 2
	})
	submit(304, models.SpeechAnswerOf("hello", 0.9))
	f.setState(flow.StateExercise)
	f.mergeProgress(func(lc *models.LearningContext) { lc.CurrentExerciseID = 305 })
	res = submit(305, models.NoAnswer())

	lc := res.Session.LearningContext
	if lc.InterestIndex != 0 {
		t.Fatalf("after second segment, interest index = %d, want wrap to 0", lc.InterestIndex)
	}
	if lc.SelectedInterest != "A" {
		t.Errorf("selected interest = %q, want A after wrap", lc.SelectedInterest)
	}
}

func TestDontKnowSkipsASRAndValidation(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         102,
		CurrentInterestSegmentID: 202,
		CurrentExerciseID:        304,
		CurrentSegmentIndex:      2,
	})

	res, err := f.svc.SubmitPronunciation(context.Background(), testLearner, testModule, []byte("audio-bytes"), "audio/ogg", true, 8)
	if err != nil {
		t.Fatalf("SubmitPronunciation: %v", err)
	}
	f.svc.WaitBackground()

	if f.asr.calls != 0 {
		t.Errorf("don't-know path called ASR %d times", f.asr.calls)
	}
	if f.validator.calls != 0 {
		t.Errorf("don't-know path called the validator %d times", f.validator.calls)
	}

	attempts := f.attempts.byExercise(304)
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
	a := attempts[0]
	if a.IsCorrect || a.Score != 0 {
		t.Errorf("attempt = {correct:%v score:%d}, want {false 0}", a.IsCorrect, a.Score)
	}
	if !a.Answer.IsEmpty() {
		t.Errorf("answer should be empty, got kind %s", a.Answer.Kind)
	}
	if a.AudioKey != "pronunciation/7/304/1.ogg" {
		t.Errorf("audio key = %q, want pronunciation/7/304/1.ogg", a.AudioKey)
	}
	if a.ASRResult != nil {
		t.Error("don't-know attempt must not carry an ASR result")
	}
	if res.Message.Content == "" {
		t.Error("feedback message should not be empty")
	}
}

func TestPronunciationTranscribesAndPatches(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateExercise, models.LearningContext{
		SegmentIDs:               []int64{101, 102, 103},
		CurrentSegmentID:         102,
		CurrentInterestSegmentID: 202,
		CurrentExerciseID:        304,
		CurrentSegmentIndex:      2,
	})

	_, err := f.svc.SubmitPronunciation(context.Background(), testLearner, testModule, []byte("audio-bytes"), "audio/webm", false, 8)
	if err != nil {
		t.Fatalf("SubmitPronunciation: %v", err)
	}
	f.svc.WaitBackground()

	if f.asr.calls != 1 {
		t.Fatalf("ASR called %d times, want 1", f.asr.calls)
	}
	if f.validator.calls != 1 {
		t.Fatalf("validator called %d times, want 1", f.validator.calls)
	}

	a := f.attempts.byExercise(304)[0]
	if a.Answer.Kind != models.AnswerSpeech || a.Answer.Speech.Transcript != "hello" {
		t.Errorf("answer = %+v, want the ASR transcript", a.Answer)
	}
	if a.AudioKey != "pronunciation/7/304/1.webm" {
		t.Errorf("audio key = %q", a.AudioKey)
	}
	if a.ASRResult == nil || a.ASRResult.Model != "fake" {
		t.Errorf("asr result not patched: %+v", a.ASRResult)
	}
}

func TestRemediationNoMistakes(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateSegmentContent, models.LearningContext{
		SegmentIDs:          []int64{101, 102, 103},
		CurrentSegmentIndex: 3,
	})
	ctx := context.Background()

	// Latest attempt for two exercises passes; the rest were never tried.
	for _, id := range []int64{301, 304} {
		_ = f.attempts.Create(ctx, &models.ExerciseAttempt{LearnerID: testLearner, ExerciseID: id, Score: 40})
		_ = f.attempts.Create(ctx, &models.ExerciseAttempt{LearnerID: testLearner, ExerciseID: id, Score: 90})
	}

	res, err := f.svc.NextSegment(ctx, testLearner, testModule)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	if !strings.Contains(res.Message.Content, "No notable mistakes") {
		t.Errorf("message = %q, want the no-mistakes review", res.Message.Content)
	}
}

func TestRemediationTruncatesMistakes(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateSegmentContent, models.LearningContext{
		SegmentIDs:          []int64{101, 102, 103},
		CurrentSegmentIndex: 3,
	})
	ctx := context.Background()

	for _, id := range []int64{301, 302, 303, 304, 305, 306, 307} {
		_ = f.attempts.Create(ctx, &models.ExerciseAttempt{LearnerID: testLearner, ExerciseID: id, Score: 30})
	}

	res, err := f.svc.NextSegment(ctx, testLearner, testModule)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	listed := strings.Count(res.Message.Content, "- Ex ")
	if listed != 5 {
		t.Errorf("listed %d mistakes, want 5:\n%s", listed, res.Message.Content)
	}
	if !strings.Contains(res.Message.Content, "2 more below 70%") {
		t.Errorf("message should carry the truncation suffix:\n%s", res.Message.Content)
	}
}

func TestSummarizationTrigger(t *testing.T) {
	f := newFixture()
	f.seedSession(flow.StateModuleWelcome, models.LearningContext{SelectedInterest: "A"})
	summarizer := &fakeSummarizer{}
	f.svc.Summaries = summarizer
	ctx := context.Background()

	for i := 0; i < summarizeAfterMessages; i++ {
		_ = f.messages.Create(ctx, &models.ChatMessage{
			SessionID: "sess-1",
			LearnerID: testLearner,
			Type:      models.MsgUserQuestion,
			Content:   fmt.Sprintf("q%d", i),
		})
	}

	if _, err := f.svc.BeginModule(ctx, testLearner, testModule); err != nil {
		t.Fatalf("BeginModule: %v", err)
	}
	if summarizer.calls != 1 {
		t.Fatalf("summarizer called %d times, want 1", summarizer.calls)
	}

	session, _ := f.sessions.GetBySessionID(ctx, "sess-1")
	if len(session.ConversationSummaries) != 1 {
		t.Fatalf("stored %d summaries, want 1", len(session.ConversationSummaries))
	}
	s := session.ConversationSummaries[0]
	if !s.To.After(s.From) {
		t.Errorf("summary window [%v, %v] is not ordered", s.From, s.To)
	}
}
