package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

// ActorKey is the gin context key the auth middleware stores the actor under.
const ActorKey = "actor"

func actorFrom(c *gin.Context) model.Actor {
	v, ok := c.Get(ActorKey)
	if !ok {
		return model.Actor{}
	}
	actor, ok := v.(model.Actor)
	if !ok {
		return model.Actor{}
	}
	return actor
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeError maps the core error taxonomy onto HTTP statuses. Internal
// details never leak on 5xx responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrDependency):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream dependency failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
