package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

const sseHeartbeat = 30 * time.Second

// ChangeStreamHandler streams committed member changes of a family as
// Server-Sent Events.
type ChangeStreamHandler struct {
	hub      *services.ChangeHub
	families *services.FamilyService
}

func NewChangeStreamHandler(hub *services.ChangeHub, families *services.FamilyService) *ChangeStreamHandler {
	return &ChangeStreamHandler{hub: hub, families: families}
}

// StreamChanges handles SSE connections for one family
// GET /api/families/:id/events
func (h *ChangeStreamHandler) StreamChanges(c *gin.Context) {
	family, err := h.families.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(family.ID, clientID)
	defer h.hub.Unsubscribe(family.ID, clientID)

	logger.Info().Str("client_id", clientID).Str("family_id", family.ID).
		Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Op, data)
			c.Writer.Flush()
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
