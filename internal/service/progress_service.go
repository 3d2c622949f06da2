package service

import (
	"context"

	"learning-chat-service/internal/flow"
	"learning-chat-service/internal/models"
)

// ModuleProgress is the learner's position inside one module.
type ModuleProgress struct {
	ModuleID           int64   `json:"module_id"`
	State              string  `json:"state"`
	TotalSegments      int     `json:"total_segments"`
	CompletedSegments  int     `json:"completed_segments"`
	CompletedExercises int     `json:"completed_exercises"`
	PercentComplete    float64 `json:"percent_complete"`
}

// TypeStatistics aggregates attempts of one exercise type.
type TypeStatistics struct {
	Attempts     int     `json:"attempts"`
	Correct      int     `json:"correct"`
	AverageScore float64 `json:"average_score"`
}

// LearnerStatistics is the attempt-ledger rollup for one learner.
type LearnerStatistics struct {
	TotalAttempts int                                    `json:"total_attempts"`
	TotalCorrect  int                                    `json:"total_correct"`
	AverageScore  float64                                `json:"average_score"`
	ByType        map[models.ExerciseType]TypeStatistics `json:"by_type"`
}

// ProgressService answers read-only progress and statistics queries.
type ProgressService struct {
	Sessions SessionStore
	Attempts AttemptStore
}

func NewProgressService(sessions SessionStore, attempts AttemptStore) *ProgressService {
	return &ProgressService{Sessions: sessions, Attempts: attempts}
}

func (s *ProgressService) ModuleProgress(ctx context.Context, learnerID, moduleID int64) (*ModuleProgress, error) {
	session, err := s.Sessions.GetActive(ctx, learnerID, moduleID)
	if err != nil {
		return nil, err
	}
	lc := session.LearningContext

	progress := &ModuleProgress{
		ModuleID:           moduleID,
		State:              session.State,
		TotalSegments:      len(lc.SegmentIDs),
		CompletedSegments:  len(lc.CompletedSegmentIDs),
		CompletedExercises: len(lc.CompletedExerciseIDs),
	}
	if progress.TotalSegments > 0 {
		progress.PercentComplete = float64(progress.CompletedSegments) / float64(progress.TotalSegments) * 100
	}
	return progress, nil
}

// CompletedModules reports which of the given modules the learner has
// finished, so listing endpoints can mark them.
func (s *ProgressService) CompletedModules(ctx context.Context, learnerID int64, moduleIDs []int64) ([]int64, error) {
	sessions, err := s.Sessions.FindByModuleIDsAndState(ctx, learnerID, moduleIDs, string(flow.StateModuleComplete))
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	completed := make([]int64, 0, len(sessions))
	for _, session := range sessions {
		id := session.LearningContext.ModuleID
		if !seen[id] {
			seen[id] = true
			completed = append(completed, id)
		}
	}
	return completed, nil
}

func (s *ProgressService) LearnerStatistics(ctx context.Context, learnerID int64) (*LearnerStatistics, error) {
	attempts, err := s.Attempts.FindByLearner(ctx, learnerID, nil)
	if err != nil {
		return nil, err
	}

	stats := &LearnerStatistics{ByType: make(map[models.ExerciseType]TypeStatistics)}
	scoreSums := make(map[models.ExerciseType]int)
	totalScore := 0
	for _, a := range attempts {
		stats.TotalAttempts++
		totalScore += a.Score
		if a.IsCorrect {
			stats.TotalCorrect++
		}

		t := stats.ByType[a.ExerciseType]
		t.Attempts++
		if a.IsCorrect {
			t.Correct++
		}
		scoreSums[a.ExerciseType] += a.Score
		stats.ByType[a.ExerciseType] = t
	}
	for exType, t := range stats.ByType {
		t.AverageScore = float64(scoreSums[exType]) / float64(t.Attempts)
		stats.ByType[exType] = t
	}
	if stats.TotalAttempts > 0 {
		stats.AverageScore = float64(totalScore) / float64(stats.TotalAttempts)
	}
	return stats, nil
}
