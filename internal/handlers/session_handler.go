package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"learning-chat-service/internal/repository"
	"learning-chat-service/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	Sessions *service.SessionService
	Progress *service.ProgressService
}

func NewSessionHandler(sessions *service.SessionService, progress *service.ProgressService) *SessionHandler {
	return &SessionHandler{Sessions: sessions, Progress: progress}
}

// StartSession returns the learner's ACTIVE session for the module, creating
// one on first call.
func (h *SessionHandler) StartSession(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	session, created, err := h.Sessions.StartOrGet(context.Background(), learner, module)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session", "details": err.Error()})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"session": session, "created": created})
}

func (h *SessionHandler) lifecycle(c *gin.Context, op func(context.Context, string) (interface{}, error)) {
	sessionID := c.Param("sessionId")
	result, err := op(context.Background(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrSessionNotActive), errors.Is(err, service.ErrSessionNotPaused):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": result})
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, id string) (interface{}, error) {
		return h.Sessions.Pause(ctx, id)
	})
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, id string) (interface{}, error) {
		return h.Sessions.Resume(ctx, id)
	})
}

func (h *SessionHandler) CompleteSession(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, id string) (interface{}, error) {
		return h.Sessions.Complete(ctx, id)
	})
}

func (h *SessionHandler) AbandonSession(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, id string) (interface{}, error) {
		return h.Sessions.Abandon(ctx, id)
	})
}

func (h *SessionHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)

	messages, err := h.Sessions.History(context.Background(), sessionID, limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

func (h *SessionHandler) GetProgress(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	progress, err := h.Progress.ModuleProgress(context.Background(), learner, module)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active session for module"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GetCompletedModules reports which of the requested modules the learner has
// finished. Module ids arrive as a comma-separated "ids" query parameter.
func (h *SessionHandler) GetCompletedModules(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}

	var moduleIDs []int64
	for _, raw := range strings.Split(c.Query("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid module ID: " + raw})
			return
		}
		moduleIDs = append(moduleIDs, id)
	}
	if len(moduleIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Module IDs are required"})
		return
	}

	completed, err := h.Progress.CompletedModules(context.Background(), learner, moduleIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed_module_ids": completed})
}

func (h *SessionHandler) GetStatistics(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}

	stats, err := h.Progress.LearnerStatistics(context.Background(), learner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
