// Package api implements the orchestrator's HTTP and WebSocket
// transport: gin handlers over internal/session.Store and
// internal/orchestrator, DTO conversion at the boundary, and a single
// error-to-response mapping via apperrors, following a Handler-struct-
// plus-method-per-route style.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	"github.com/elisalabs/nugget-orchestrator/internal/orchestrator"
	"github.com/elisalabs/nugget-orchestrator/internal/scheduler"
	"github.com/elisalabs/nugget-orchestrator/internal/session"
	"github.com/elisalabs/nugget-orchestrator/internal/workspace"
	v1 "github.com/elisalabs/nugget-orchestrator/pkg/api/v1"
)

// Handler holds every collaborator a request needs to drive a session
// through the orchestrator.
type Handler struct {
	store    *session.Store
	planner  orchestrator.Planner
	runner   agentrunner.Runner
	git      scheduler.Git
	policy   *workspace.Policy
	schedCfg scheduler.Config
	maxBudget int64
	log      *logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(
	store *session.Store,
	planner orchestrator.Planner,
	runner agentrunner.Runner,
	git scheduler.Git,
	policy *workspace.Policy,
	schedCfg scheduler.Config,
	maxBudget int64,
	log *logger.Logger,
) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		store:     store,
		planner:   planner,
		runner:    runner,
		git:       git,
		policy:    policy,
		schedCfg:  schedCfg,
		maxBudget: maxBudget,
		log:       log.WithFields(zap.String("component", "orchestrator-api")),
	}
}

func (h *Handler) respondErr(c *gin.Context, err *apperrors.AppError) {
	if err.Code == apperrors.CodeInvalidSpec {
		violations := err.Violations
		if len(violations) == 0 {
			violations = []models.ValidationError{{Path: err.Path, Message: err.Message}}
		}
		errs := make([]v1.ValidationErrDTO, len(violations))
		for i, v := range violations {
			errs[i] = v1.ValidationErrDTO{Path: v.Path, Message: v.Message}
		}
		c.JSON(err.HTTPStatusCode(), v1.InvalidSpecResponse{
			Detail: "Invalid NuggetSpec",
			Errors: errs,
		})
		return
	}
	c.JSON(err.HTTPStatusCode(), gin.H{"code": err.Code, "message": err.Message, "path": err.Path})
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.store.Create()
	c.JSON(http.StatusOK, v1.CreateSessionResponse{SessionID: sess.ID})
}

// GetSession handles GET /api/sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	id := c.Param("id")
	sess, err := h.store.Get(id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionToDTO(sess))
}

// StartSession handles POST /api/sessions/:id/start.
func (h *Handler) StartSession(c *gin.Context) {
	id := c.Param("id")

	var req v1.StartSessionRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		h.respondErr(c, apperrors.InvalidSpec("", "request body could not be parsed: "+bindErr.Error()))
		return
	}

	if err := h.store.TryStart(id); err != nil {
		h.respondErr(c, err)
		return
	}

	spec := specFromDTO(req.Spec)
	sess, getErr := h.store.Get(id)
	if getErr != nil {
		h.store.Reset(id)
		h.respondErr(c, getErr)
		return
	}

	orch, startErr := orchestrator.StartSession(
		context.WithoutCancel(c.Request.Context()), sess, spec, req.WorkspacePath,
		h.planner, h.runner, h.git, h.policy, h.schedCfg, h.maxBudget, h.log,
	)
	if startErr != nil {
		h.store.Reset(id)
		h.respondErr(c, startErr)
		return
	}

	h.store.Started(id, orch)
	c.JSON(http.StatusOK, gin.H{"message": "session started", "session_id": id})
}

// StopSession handles POST /api/sessions/:id/stop.
func (h *Handler) StopSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Stop(id); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session stopped", "session_id": id})
}

// GetTasks handles GET /api/sessions/:id/tasks.
func (h *Handler) GetTasks(c *gin.Context) {
	id := c.Param("id")
	sess, err := h.store.Get(id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionToDTO(sess).Tasks)
}

// GetGitLog handles GET /api/sessions/:id/git.
func (h *Handler) GetGitLog(c *gin.Context) {
	id := c.Param("id")
	orch, ok := session.Lookup[*orchestrator.Orchestrator](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.NotFound("session has no live orchestrator"))
		return
	}
	var commits []v1.CommitDTO
	for _, ev := range orch.GitLog() {
		commits = append(commits, v1.CommitDTO{SHA: ev.SHA, TaskID: ev.TaskID, AgentName: ev.AgentName})
	}
	c.JSON(http.StatusOK, v1.GitLogResponse{Commits: commits})
}

// GetTestReport handles GET /api/sessions/:id/tests.
func (h *Handler) GetTestReport(c *gin.Context) {
	id := c.Param("id")
	orch, ok := session.Lookup[*orchestrator.Orchestrator](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.NotFound("session has no live orchestrator"))
		return
	}
	var results []v1.TestResultDTO
	for _, ev := range orch.TestLog() {
		results = append(results, v1.TestResultDTO{TestName: ev.TestName, Passed: ev.Passed, Details: ev.Details})
	}
	c.JSON(http.StatusOK, v1.TestReportResponse{Results: results})
}

// RespondGate handles POST /api/sessions/:id/gate.
func (h *Handler) RespondGate(c *gin.Context) {
	id := c.Param("id")
	var req v1.GateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, apperrors.InvalidSpec("", "request body could not be parsed: "+err.Error()))
		return
	}
	handler, ok := session.Lookup[session.GateHandler](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.Conflict("no human gate is pending"))
		return
	}
	if err := handler.RespondToGate(c.Request.Context(), req.Approved, req.Feedback); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "gate response recorded"})
}

// RespondQuestion handles POST /api/sessions/:id/question.
func (h *Handler) RespondQuestion(c *gin.Context) {
	id := c.Param("id")
	var req v1.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, apperrors.InvalidSpec("", "request body could not be parsed: "+err.Error()))
		return
	}
	handler, ok := session.Lookup[session.QuestionHandler](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.Conflict("no question is pending for this task"))
		return
	}
	if err := handler.RespondToQuestion(c.Request.Context(), req.TaskID, req.Answers); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "question answer recorded"})
}

// ExportWorkspace handles GET /api/sessions/:id/export.
func (h *Handler) ExportWorkspace(c *gin.Context) {
	id := c.Param("id")
	orch, ok := session.Lookup[*orchestrator.Orchestrator](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.NotFound("session has no live orchestrator"))
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+id+`.zip"`)
	if err := orch.Export(c.Writer); err != nil {
		h.log.Error("workspace export failed", zap.String("session_id", id), zap.Error(err))
	}
}
