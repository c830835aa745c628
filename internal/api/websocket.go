package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/orchestrator"
	"github.com/elisalabs/nugget-orchestrator/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth/origin-check internals at the upgrade boundary are out of
	// scope; production deployments should replace this.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents handles GET /api/sessions/:id/events: upgrades to a
// WebSocket and fans out the session's single ordered EventStream,
// one-way, until the stream closes or the client disconnects.
func (h *Handler) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	orch, ok := session.Lookup[*orchestrator.Orchestrator](h.store, id)
	if !ok {
		h.respondErr(c, apperrors.NotFound("session has no live orchestrator"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	for ev := range orch.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debug("websocket write failed, closing", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}
