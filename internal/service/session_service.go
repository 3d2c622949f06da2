package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"learning-chat-service/internal/event"
	"learning-chat-service/internal/flow"
	"learning-chat-service/internal/models"
	"learning-chat-service/internal/repository"
)

var (
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionNotPaused = errors.New("session is not paused")
)

// SessionService owns the session lifecycle. The flow orchestrator assumes an
// ACTIVE session exists; this is where it comes from.
type SessionService struct {
	Sessions  SessionStore
	Messages  MessageStore
	Content   ContentProvider
	Publisher Publisher
}

func NewSessionService(sessions SessionStore, messages MessageStore, content ContentProvider, publisher Publisher) *SessionService {
	return &SessionService{Sessions: sessions, Messages: messages, Content: content, Publisher: publisher}
}

// StartOrGet returns the learner's ACTIVE session for the module, creating
// one when none exists. The bool reports whether a session was created.
func (s *SessionService) StartOrGet(ctx context.Context, learnerID, moduleID int64) (*models.ChatSession, bool, error) {
	existing, err := s.Sessions.GetActive(ctx, learnerID, moduleID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	module, err := s.Content.GetModule(ctx, moduleID)
	if err != nil {
		return nil, false, err
	}

	lc := models.LearningContext{
		ModuleID: moduleID,
		Module: models.ModuleSnapshot{
			ID:          module.ID,
			Title:       module.Title,
			Description: module.Description,
			Order:       module.Order,
		},
		ExercisesPerSegment: ExercisesPerSegment,
	}
	if next, err := s.Content.NextModule(ctx, moduleID); err == nil {
		lc.NextModuleID = next.ID
	}
	if prefs, err := s.Content.LearnerPreferences(ctx, learnerID); err == nil && len(prefs.Interests) > 0 {
		lc.SelectedInterest = prefs.Interests[0]
	}

	session := &models.ChatSession{
		SessionID:       uuid.NewString(),
		LearnerID:       learnerID,
		Type:            models.SessionLearningFlow,
		Status:          models.SessionActive,
		State:           string(flow.StateModuleWelcome),
		LearningContext: lc,
		StartedAt:       time.Now(),
	}
	err = s.Sessions.Create(ctx, session)
	if errors.Is(err, repository.ErrSessionExists) {
		// Lost the race to a concurrent start; hand back the winner.
		existing, err := s.Sessions.GetActive(ctx, learnerID, moduleID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}

	_ = s.publish(event.SessionStarted, map[string]interface{}{
		"session_id": session.SessionID,
		"learner_id": learnerID,
		"module_id":  moduleID,
	})
	return session, true, nil
}

func (s *SessionService) Pause(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}
	session, err = s.Sessions.SetStatus(ctx, sessionID, models.SessionPaused)
	if err != nil {
		return nil, err
	}
	_ = s.publish(event.SessionPaused, sessionPayload(session))
	return session, nil
}

func (s *SessionService) Resume(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaused {
		return nil, ErrSessionNotPaused
	}
	session, err = s.Sessions.SetStatus(ctx, sessionID, models.SessionActive)
	if err != nil {
		return nil, err
	}
	_ = s.publish(event.SessionResumed, sessionPayload(session))
	return session, nil
}

func (s *SessionService) Complete(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive && session.Status != models.SessionPaused {
		return nil, fmt.Errorf("complete session %s: %w", sessionID, ErrSessionNotActive)
	}
	session, err = s.Sessions.SetStatus(ctx, sessionID, models.SessionCompleted)
	if err != nil {
		return nil, err
	}
	_ = s.publish(event.SessionCompleted, sessionPayload(session))
	return session, nil
}

func (s *SessionService) Abandon(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionCompleted || session.Status == models.SessionAbandoned {
		return nil, fmt.Errorf("abandon session %s: %w", sessionID, ErrSessionNotActive)
	}
	session, err = s.Sessions.SetStatus(ctx, sessionID, models.SessionAbandoned)
	if err != nil {
		return nil, err
	}
	_ = s.publish(event.SessionAbandoned, sessionPayload(session))
	return session, nil
}

// History pages through the session's messages, oldest first.
func (s *SessionService) History(ctx context.Context, sessionID string, limit, offset int64) ([]models.ChatMessage, error) {
	if _, err := s.Sessions.GetBySessionID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.Messages.FindBySession(ctx, sessionID, limit, offset)
}

func (s *SessionService) publish(routingKey string, payload interface{}) error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.Publish(routingKey, payload)
}

func sessionPayload(session *models.ChatSession) map[string]interface{} {
	return map[string]interface{}{
		"session_id": session.SessionID,
		"learner_id": session.LearnerID,
		"module_id":  session.LearningContext.ModuleID,
		"status":     session.Status,
	}
}
