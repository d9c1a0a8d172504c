package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"projecthub/internal/service/board"
)

type TaskHandler struct {
	boardService *board.Service
}

func NewTaskHandler(boardService *board.Service) *TaskHandler {
	return &TaskHandler{
		boardService: boardService,
	}
}

// CreateTask handles POST /projects/:id/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Status      string     `json:"status"`
		Priority    string     `json:"priority"`
		Assignee    string     `json:"assignee"`
		DueDate     *time.Time `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.boardService.Create(c.Request.Context(), actorFrom(c), board.CreateInput{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// ListTasks handles GET /projects/:id/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tasks, err := h.boardService.List(c.Request.Context(), actorFrom(c), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// UpdateTask handles PATCH /tasks/:id
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Priority    *string    `json:"priority"`
		Assignee    *string    `json:"assignee"`
		DueDate     *time.Time `json:"due_date"`
		ClearDue    bool       `json:"clear_due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.boardService.Update(c.Request.Context(), actorFrom(c), id, board.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDue,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// MoveTask handles PUT /tasks/:id/position
func (h *TaskHandler) MoveTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status   string `json:"status"`
		Position int    `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.boardService.Move(c.Request.Context(), actorFrom(c), id, req.Status, req.Position)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTask handles DELETE /tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.boardService.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// TaskStats handles GET /projects/:id/tasks/stats
func (h *TaskHandler) TaskStats(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.boardService.Stats(c.Request.Context(), actorFrom(c), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AddComment handles POST /tasks/:id/comments
func (h *TaskHandler) AddComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	comment, err := h.boardService.AddComment(c.Request.Context(), actorFrom(c), id, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// ListComments handles GET /tasks/:id/comments
func (h *TaskHandler) ListComments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	comments, err := h.boardService.ListComments(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}
