package api

import (
	"github.com/gin-gonic/gin"

	"github.com/elisalabs/nugget-orchestrator/internal/common/httpmw"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
)

// NewRouter builds the gin engine and registers every session route.
func NewRouter(h *Handler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.RequestLogger(log))

	sessions := r.Group("/api/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/start", h.StartSession)
		sessions.POST("/:id/stop", h.StopSession)
		sessions.GET("/:id/tasks", h.GetTasks)
		sessions.GET("/:id/git", h.GetGitLog)
		sessions.GET("/:id/tests", h.GetTestReport)
		sessions.POST("/:id/gate", h.RespondGate)
		sessions.POST("/:id/question", h.RespondQuestion)
		sessions.GET("/:id/export", h.ExportWorkspace)
		sessions.GET("/:id/events", h.StreamEvents)
	}

	return r
}
