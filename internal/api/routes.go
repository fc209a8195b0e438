package api

import (
	"net/http"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	workspaceService service.WorkspaceService,
	proposeService service.ProposeService,
	sweeperService service.SweeperService,
	archiveService service.ArchiveService, // nil when archiving is disabled
	archiveRetention time.Duration,
) {
	authHandler := NewAuthHandler(authService)
	workspaceHandler := NewWorkspaceHandler(workspaceService)
	proposalHandler := NewProposalHandler(proposeService)
	maintenanceHandler := NewMaintenanceHandler(sweeperService, archiveService, archiveRetention)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userID, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userID.Hex(), "role": role})
		})

		// --- Workspace Routes ---
		workspaceGroup := protected.Group("/workspaces")
		{
			workspaceGroup.POST("/bootstrap", workspaceHandler.Bootstrap)
			workspaceGroup.GET("", workspaceHandler.List)
			workspaceGroup.GET("/:workspaceId", workspaceHandler.Get)
			workspaceGroup.GET("/:workspaceId/events", workspaceHandler.Events)

			// Mutations go through the single action endpoint, any role.
			workspaceGroup.POST("/:workspaceId/actions", workspaceHandler.Action)

			// Agents submit proposal batches; users never call this directly.
			workspaceGroup.POST("/:workspaceId/proposals",
				RoleMiddleware(domain.RoleAgent, domain.RoleAdmin), proposalHandler.Propose)

			// Replay is a diagnostic; owners may check their own workspace,
			// admins any.
			workspaceGroup.POST("/:workspaceId/replay", workspaceHandler.Replay)
		}

		// --- Maintenance Routes (admin only) ---
		maintenanceGroup := protected.Group("/maintenance")
		maintenanceGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			maintenanceGroup.POST("/sweep", maintenanceHandler.Sweep)
			maintenanceGroup.POST("/archive", maintenanceHandler.Archive)
		}
	}
}
