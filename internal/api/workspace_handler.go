package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkspaceHandler holds the workspace service dependency.
type WorkspaceHandler struct {
	workspaceService service.WorkspaceService
}

// NewWorkspaceHandler creates a new WorkspaceHandler.
func NewWorkspaceHandler(workspaceService service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaceService: workspaceService}
}

// --- Request/Response Structs ---

type BootstrapRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

type WorkspaceResponse struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId"`
	Purpose   string       `json:"purpose"`
	Phase     domain.Phase `json:"phase"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type BootstrapResponse struct {
	Workspace WorkspaceResponse `json:"workspace"`
	Created   bool              `json:"created"`
}

// ActionRequest is one mutation request. ExpectedVersion is a pointer so a
// missing field is distinguishable from version 0.
type ActionRequest struct {
	ExpectedVersion *int64            `json:"expectedVersion" binding:"required"`
	Type            domain.ActionType `json:"type" binding:"required"`
	TargetID        string            `json:"targetId,omitempty"`
	GroupID         string            `json:"groupId,omitempty"`
	Payload         map[string]any    `json:"payload,omitempty"`
	IdempotencyKey  string            `json:"idempotencyKey" binding:"required"`
}

// MapWorkspaceToResponse converts a domain workspace to its API representation.
func MapWorkspaceToResponse(ws *domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID.Hex(),
		OwnerID:   ws.OwnerID.Hex(),
		Purpose:   ws.Purpose,
		Phase:     ws.Phase,
		Version:   ws.Version,
		CreatedAt: ws.CreatedAt,
		UpdatedAt: ws.UpdatedAt,
	}
}

// --- Handler Methods ---

// Bootstrap godoc
// @Summary Find or create the caller's workspace for a purpose
// @Tags Workspaces
// @Accept json
// @Produce json
// @Param request body BootstrapRequest true "Bootstrap details"
// @Success 200 {object} BootstrapResponse "Existing workspace returned"
// @Success 201 {object} BootstrapResponse "Workspace created"
// @Failure 400 {object} gin.H "Invalid input"
// @Router /workspaces/bootstrap [post]
func (h *WorkspaceHandler) Bootstrap(c *gin.Context) {
	var req BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	ws, created, err := h.workspaceService.Bootstrap(c.Request.Context(), userID, req.Purpose)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, BootstrapResponse{Workspace: MapWorkspaceToResponse(ws), Created: created})
}

// List godoc
// @Summary List the caller's workspaces
// @Tags Workspaces
// @Produce json
// @Success 200 {array} WorkspaceResponse
// @Router /workspaces [get]
func (h *WorkspaceHandler) List(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	workspaces, err := h.workspaceService.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]WorkspaceResponse, 0, len(workspaces))
	for i := range workspaces {
		out = append(out, MapWorkspaceToResponse(&workspaces[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Get godoc
// @Summary Get one workspace with its cards and surface-next queue
// @Tags Workspaces
// @Produce json
// @Param workspaceId path string true "Workspace ID"
// @Success 200 {object} service.WorkspaceView
// @Failure 404 {object} domain.Error "Workspace not found"
// @Router /workspaces/{workspaceId} [get]
func (h *WorkspaceHandler) Get(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	callerID, err := callerScope(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	view, err := h.workspaceService.Get(c.Request.Context(), callerID, workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Action godoc
// @Summary Apply one typed action to a workspace
// @Description Runs the action through validation, the idempotency guard
// @Description and one atomic transaction against the expected version.
// @Tags Workspaces
// @Accept json
// @Produce json
// @Param workspaceId path string true "Workspace ID"
// @Param action body ActionRequest true "Action to apply"
// @Success 200 {object} domain.CommitResult
// @Failure 400 {object} domain.Error "INVALID_ARGUMENT"
// @Failure 404 {object} domain.Error "NOT_FOUND"
// @Failure 409 {object} domain.Error "STALE_VERSION / PHASE_GUARD / UNDO_NOT_POSSIBLE"
// @Failure 422 {object} domain.Error "SCIENCE_VIOLATION / SAFETY_VIOLATION"
// @Router /workspaces/{workspaceId}/actions [post]
func (h *WorkspaceHandler) Action(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	callerID, err := callerScope(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	action := &domain.Action{
		Type:           req.Type,
		GroupID:        req.GroupID,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		Origin:         originFor(c),
	}
	if req.TargetID != "" {
		targetID, err := primitive.ObjectIDFromHex(req.TargetID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid target card ID format")
			return
		}
		action.TargetID = targetID
	}

	commit, err := h.workspaceService.Apply(c.Request.Context(), callerID, workspaceID, *req.ExpectedVersion, action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commit)
}

// Events godoc
// @Summary Read the workspace event log
// @Tags Workspaces
// @Produce json
// @Param workspaceId path string true "Workspace ID"
// @Param from query int false "Return events with version greater than this" default(0)
// @Success 200 {array} domain.Event
// @Router /workspaces/{workspaceId}/events [get]
func (h *WorkspaceHandler) Events(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	callerID, err := callerScope(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	from := int64(0)
	if raw := c.Query("from"); raw != "" {
		from, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || from < 0 {
			abortWithError(c, http.StatusBadRequest, "Invalid 'from' query parameter")
			return
		}
	}

	events, err := h.workspaceService.Events(c.Request.Context(), callerID, workspaceID, from)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Replay godoc
// @Summary Rebuild the workspace from its event log and compare
// @Description Diagnostic: folds every event into a fresh state and reports
// @Description any divergence from the live documents.
// @Tags Workspaces
// @Produce json
// @Param workspaceId path string true "Workspace ID"
// @Success 200 {object} service.ReplayReport
// @Router /workspaces/{workspaceId}/replay [post]
func (h *WorkspaceHandler) Replay(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	callerID, err := callerScope(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	report, err := h.workspaceService.Replay(c.Request.Context(), callerID, workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// workspaceID parses the path parameter, writing the 400 itself on failure.
func (h *WorkspaceHandler) workspaceID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("workspaceId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid workspace ID format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// originFor derives the action origin from the caller's role.
func originFor(c *gin.Context) domain.Origin {
	if role, err := getUserRoleFromContext(c); err == nil && role == domain.RoleAgent {
		return domain.OriginAgent
	}
	return domain.OriginUser
}
