package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// liveMessage is pushed to the client on connect and after every applied change.
type liveMessage struct {
	Action     string                 `json:"action"`
	Change     *services.MemberChange `json:"change,omitempty"`
	Layout     *genealogy.Layout      `json:"layout,omitempty"`
	Selected   *string                `json:"selected"`
	SelfInTree bool                   `json:"self_in_tree"`
	Version    uint64                 `json:"version"`
}

// liveRequest is what a client may send: {"action":"select","member_id":"..."}.
type liveRequest struct {
	Action   string  `json:"action"`
	MemberID *string `json:"member_id"`
}

// LiveTree keeps a tree controller attached to the change hub and pushes the
// recomputed layout to a WebSocket client
// GET /api/families/:id/live
func (h *TreeHandler) LiveTree(c *gin.Context) {
	changes := make(chan services.MemberChange, 16)
	ctrl, family, err := h.trees.OpenAttached(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), func(change services.MemberChange) {
		select {
		case changes <- change:
		default:
			// the next delivered change carries the latest layout anyway
		}
	})
	if err != nil {
		fail(c, err)
		return
	}
	defer ctrl.Close()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade the websocket")
		return
	}
	defer ws.Close()

	log := logger.Component("live").With().Str("family_id", family.ID).Uint("user_id", middleware.GetUserID(c)).Logger()
	log.Info().Msg("live client connected")

	requests := make(chan liveRequest)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadDeadline(time.Now().Add(livePongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			var req liveRequest
			if err := ws.ReadJSON(&req); err != nil {
				log.Info().Err(err).Msg("live client disconnected")
				return
			}
			select {
			case requests <- req:
			case <-c.Request.Context().Done():
				return
			}
		}
	}()

	send := func(action string, change *services.MemberChange) bool {
		ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
		err := ws.WriteJSON(liveMessage{
			Action:     action,
			Change:     change,
			Layout:     ctrl.Layout(),
			Selected:   ctrl.Store().Selected(),
			SelfInTree: ctrl.IsLinked(),
			Version:    ctrl.Store().Version(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("live write failed")
			return false
		}
		return true
	}

	if !send("snapshot", nil) {
		return
	}

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		select {
		case change := <-changes:
			if !send("change", &change) {
				return
			}
		case req := <-requests:
			if req.Action != "select" {
				continue
			}
			ctrl.Select(req.MemberID)
			if !send("selected", nil) {
				return
			}
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
