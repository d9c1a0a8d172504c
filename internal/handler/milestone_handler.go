package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"projecthub/internal/service/milestone"
)

type MilestoneHandler struct {
	milestoneService *milestone.Service
}

func NewMilestoneHandler(milestoneService *milestone.Service) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneService: milestoneService,
	}
}

// CreateMilestone handles POST /projects/:id/milestones
func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		DueDate     time.Time `json:"due_date"`
		Assignee    string    `json:"assignee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m, err := h.milestoneService.Create(c.Request.Context(), actorFrom(c), milestone.CreateInput{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Assignee:    req.Assignee,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMilestones handles GET /projects/:id/milestones
func (h *MilestoneHandler) ListMilestones(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	milestones, err := h.milestoneService.List(c.Request.Context(), actorFrom(c), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

// UpdateMilestone handles PATCH /milestones/:id
func (h *MilestoneHandler) UpdateMilestone(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Assignee    *string    `json:"assignee"`
		Status      *string    `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m, err := h.milestoneService.Update(c.Request.Context(), actorFrom(c), id, milestone.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Assignee:    req.Assignee,
		Status:      req.Status,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpdateProgress handles PUT /milestones/:id/progress
func (h *MilestoneHandler) UpdateProgress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Progress int `json:"progress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.milestoneService.UpdateProgress(c.Request.Context(), actorFrom(c), id, req.Progress); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// UpdateStatus handles PUT /milestones/:id/status
func (h *MilestoneHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.milestoneService.UpdateStatus(c.Request.Context(), actorFrom(c), id, req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// DeleteMilestone handles DELETE /milestones/:id
func (h *MilestoneHandler) DeleteMilestone(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.milestoneService.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// AddActivity handles POST /milestones/:id/activities
func (h *MilestoneHandler) AddActivity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Type        string            `json:"type"`
		Description string            `json:"description"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.milestoneService.AddActivity(c.Request.Context(), actorFrom(c), id, req.Type, req.Description, req.Metadata); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}

// ListActivities handles GET /milestones/:id/activities
func (h *MilestoneHandler) ListActivities(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	activities, err := h.milestoneService.ListActivities(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// TimelineStats handles GET /projects/:id/milestones/stats
func (h *MilestoneHandler) TimelineStats(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.milestoneService.TimelineStats(c.Request.Context(), actorFrom(c), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
