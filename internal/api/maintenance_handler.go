package api

import (
	"net/http"
	"strconv"
	"time"

	"alcyxob/fitness-workspace/internal/service"

	"github.com/gin-gonic/gin"
)

// MaintenanceHandler exposes the admin-only operational endpoints: manual
// proposal sweeps and event archive passes. Both run on timers anyway;
// these routes exist for operators who do not want to wait for the tick.
type MaintenanceHandler struct {
	sweeperService service.SweeperService
	archiveService service.ArchiveService
	retention      time.Duration
}

// NewMaintenanceHandler creates a new MaintenanceHandler. archiveService
// may be nil when archiving is disabled in config.
func NewMaintenanceHandler(sweeperService service.SweeperService, archiveService service.ArchiveService, retention time.Duration) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeperService: sweeperService,
		archiveService: archiveService,
		retention:      retention,
	}
}

// Sweep godoc
// @Summary Expire overdue proposals now
// @Description Runs one sweep pass. With a workspaceId query parameter the
// @Description pass covers only that workspace.
// @Tags Maintenance
// @Produce json
// @Param workspaceId query string false "Limit the sweep to one workspace"
// @Success 200 {object} gin.H "expiredCount"
// @Router /maintenance/sweep [post]
func (h *MaintenanceHandler) Sweep(c *gin.Context) {
	if raw := c.Query("workspaceId"); raw != "" {
		workspaceID, err := parseObjectID(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid workspace ID format")
			return
		}
		n, err := h.sweeperService.SweepWorkspace(c.Request.Context(), workspaceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expiredCount": n})
		return
	}

	n, err := h.sweeperService.SweepAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expiredCount": n})
}

// Archive godoc
// @Summary Copy old events to the archive sink now
// @Tags Maintenance
// @Produce json
// @Param retentionHours query int false "Override the configured retention"
// @Success 200 {object} gin.H "archivedCount"
// @Failure 503 {object} gin.H "Archiving not configured"
// @Router /maintenance/archive [post]
func (h *MaintenanceHandler) Archive(c *gin.Context) {
	if h.archiveService == nil {
		abortWithError(c, http.StatusServiceUnavailable, "Event archiving is not configured")
		return
	}

	retention := h.retention
	if raw := c.Query("retentionHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			abortWithError(c, http.StatusBadRequest, "Invalid 'retentionHours' query parameter")
			return
		}
		retention = time.Duration(hours) * time.Hour
	}

	n, err := h.archiveService.ArchiveAll(c.Request.Context(), retention)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archivedCount": n})
}
