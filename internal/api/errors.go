package api

import (
	"errors"
	"log"
	"net/http"

	"alcyxob/fitness-workspace/internal/domain"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// respondError maps a domain error to its HTTP status and writes the full
// structured error body (code, message, details) for machine callers.
func respondError(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		log.Printf("ERROR: unhandled error in %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		return
	}
	c.AbortWithStatusJSON(statusFor(derr.Code), derr)
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeScienceViolation, domain.CodeSafetyViolation:
		return http.StatusUnprocessableEntity
	case domain.CodeStaleVersion, domain.CodePhaseGuard, domain.CodeUndoNotPossible, domain.CodeQueueCapExceeded:
		return http.StatusConflict
	case domain.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// parseObjectID wraps the hex conversion for path parameters.
func parseObjectID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}

// callerScope returns the ownership scope for the request: the caller's own
// id, or the nil id for admins, who may read any workspace.
func callerScope(c *gin.Context) (primitive.ObjectID, error) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if role, err := getUserRoleFromContext(c); err == nil && role == domain.RoleAdmin {
		return primitive.NilObjectID, nil
	}
	return userID, nil
}
