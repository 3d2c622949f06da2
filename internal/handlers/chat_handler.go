package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"learning-chat-service/internal/flow"
	"learning-chat-service/internal/lock"
	"learning-chat-service/internal/models"
	"learning-chat-service/internal/repository"
	"learning-chat-service/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler maps the flow orchestrator operations onto HTTP.
type ChatHandler struct {
	Flow *service.FlowService
}

func NewChatHandler(flowService *service.FlowService) *ChatHandler {
	return &ChatHandler{Flow: flowService}
}

// learnerID reads the X-Learner-ID header set by the auth middleware.
func learnerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-Learner-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Learner ID is required"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid learner ID"})
		return 0, false
	}
	return id, true
}

func moduleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("moduleId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid module ID"})
		return 0, false
	}
	return id, true
}

// writeFlowError maps orchestrator failures to status codes: missing content
// is 404, an illegal action is 400, a busy session is 409.
func writeFlowError(c *gin.Context, err error) {
	var invalid *flow.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.Is(err, lock.ErrLockHeld):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is busy, retry shortly"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ChatHandler) BeginModule(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	result, err := h.Flow.BeginModule(context.Background(), learner, module)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChatHandler) NextSegment(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	result, err := h.Flow.NextSegment(context.Background(), learner, module)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChatHandler) NextExercise(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	result, err := h.Flow.NextExercise(context.Background(), learner, module)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChatHandler) SubmitAnswer(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	var req struct {
		Answer    models.Answer `json:"answer" binding:"required"`
		TimeSpent int           `json:"time_spent"`
		HintsUsed int           `json:"hints_used"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	result, err := h.Flow.SubmitAnswer(context.Background(), learner, module, req.Answer, req.TimeSpent, req.HintsUsed)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitPronunciation accepts a multipart form: the audio under "audio",
// plus optional "dont_know" and "time_spent" fields.
func (h *ChatHandler) SubmitPronunciation(c *gin.Context) {
	learner, ok := learnerID(c)
	if !ok {
		return
	}
	module, ok := moduleID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read audio file"})
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read audio file"})
		return
	}

	isDontKnow := c.PostForm("dont_know") == "true"
	timeSpent, _ := strconv.Atoi(c.PostForm("time_spent"))
	mimeType := fileHeader.Header.Get("Content-Type")

	result, err := h.Flow.SubmitPronunciation(context.Background(), learner, module, audio, mimeType, isDontKnow, timeSpent)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
