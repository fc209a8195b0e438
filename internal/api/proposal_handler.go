package api

import (
	"fmt"
	"net/http"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/service"

	"github.com/gin-gonic/gin"
)

// ProposalHandler holds the propose service dependency. Its routes are
// agent-only; humans decide proposals through the action endpoint instead.
type ProposalHandler struct {
	proposeService service.ProposeService
}

// NewProposalHandler creates a new ProposalHandler.
func NewProposalHandler(proposeService service.ProposeService) *ProposalHandler {
	return &ProposalHandler{proposeService: proposeService}
}

// --- Request/Response Structs ---

type CardDraftRequest struct {
	Type       domain.CardType  `json:"type" binding:"required"`
	Lane       domain.Lane      `json:"lane" binding:"required"`
	Content    map[string]any   `json:"content" binding:"required"`
	Refs       *domain.CardRefs `json:"refs,omitempty"`
	Priority   int              `json:"priority"`
	TTLMinutes *int             `json:"ttlMinutes,omitempty" binding:"omitempty,min=1"`
}

type ProposeRequest struct {
	Cards []CardDraftRequest `json:"cards" binding:"required,min=1,dive"`
}

// --- Handler Methods ---

// Propose godoc
// @Summary Submit a batch of proposed cards to a workspace
// @Description Inserts proposed cards and their surface-next queue entries.
// @Description Does not consume a workspace version and writes no event;
// @Description only deciding a proposal does.
// @Tags Proposals
// @Accept json
// @Produce json
// @Param workspaceId path string true "Workspace ID"
// @Param request body ProposeRequest true "Cards to propose"
// @Success 201 {object} service.ProposeResult
// @Failure 400 {object} domain.Error "INVALID_ARGUMENT"
// @Failure 404 {object} domain.Error "Workspace not found"
// @Failure 422 {object} domain.Error "SCIENCE_VIOLATION / SAFETY_VIOLATION"
// @Router /workspaces/{workspaceId}/proposals [post]
func (h *ProposalHandler) Propose(c *gin.Context) {
	workspaceID, err := parseObjectID(c.Param("workspaceId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid workspace ID format")
		return
	}

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	drafts := make([]service.CardDraft, 0, len(req.Cards))
	for _, card := range req.Cards {
		drafts = append(drafts, service.CardDraft{
			Type:       card.Type,
			Lane:       card.Lane,
			Content:    card.Content,
			Refs:       card.Refs,
			Priority:   card.Priority,
			TTLMinutes: card.TTLMinutes,
		})
	}

	result, err := h.proposeService.Propose(c.Request.Context(), workspaceID, drafts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
