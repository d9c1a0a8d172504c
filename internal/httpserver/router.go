package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"projecthub/internal/handler"
	"projecthub/internal/service/auth"
	"projecthub/pkg/metrics"
	"projecthub/pkg/mq"
	"projecthub/pkg/trace"
	"projecthub/pkg/util"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Project   *handler.ProjectHandler
	Milestone *handler.MilestoneHandler
	Task      *handler.TaskHandler
}

func NewRouter(h Handlers, authService *auth.Service, logger *zap.Logger, db *pgxpool.Pool, publisher *mq.Publisher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		ctx := trace.WithContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), traceID)

		c.Next()

		latency := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), latency)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", traceID),
		)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/register", h.Auth.Register)
	r.POST("/auth/login", h.Auth.Login)

	api := r.Group("/")
	api.Use(requireAuth(authService))

	api.POST("/projects", h.Project.CreateProject)
	api.GET("/projects", h.Project.ListProjects)
	api.GET("/projects/:id", h.Project.GetProject)
	api.PUT("/projects/:id/mentor", h.Project.AssignMentor)
	api.DELETE("/projects/:id", h.Project.DeleteProject)

	api.POST("/projects/:id/milestones", h.Milestone.CreateMilestone)
	api.GET("/projects/:id/milestones", h.Milestone.ListMilestones)
	api.GET("/projects/:id/milestones/stats", h.Milestone.TimelineStats)
	api.PATCH("/milestones/:id", h.Milestone.UpdateMilestone)
	api.PUT("/milestones/:id/progress", h.Milestone.UpdateProgress)
	api.PUT("/milestones/:id/status", h.Milestone.UpdateStatus)
	api.DELETE("/milestones/:id", h.Milestone.DeleteMilestone)
	api.POST("/milestones/:id/activities", h.Milestone.AddActivity)
	api.GET("/milestones/:id/activities", h.Milestone.ListActivities)

	api.POST("/projects/:id/tasks", h.Task.CreateTask)
	api.GET("/projects/:id/tasks", h.Task.ListTasks)
	api.GET("/projects/:id/tasks/stats", h.Task.TaskStats)
	api.PATCH("/tasks/:id", h.Task.UpdateTask)
	api.PUT("/tasks/:id/position", h.Task.MoveTask)
	api.DELETE("/tasks/:id", h.Task.DeleteTask)
	api.POST("/tasks/:id/comments", h.Task.AddComment)
	api.GET("/tasks/:id/comments", h.Task.ListComments)

	return r
}

// requireAuth resolves the bearer token to an actor and aborts with 401 when
// it cannot.
func requireAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		actor, err := authService.ActorFromToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(handler.ActorKey, actor)
		c.Next()
	}
}
