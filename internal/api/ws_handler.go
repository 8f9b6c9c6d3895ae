package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/vigilai/vigil-core/internal/realtime"
	"github.com/vigilai/vigil-core/internal/tokens"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	Hub    *realtime.Hub
	Tokens *tokens.Manager
}

func NewWSHandler(hub *realtime.Hub, mgr *tokens.Manager) *WSHandler {
	return &WSHandler{Hub: hub, Tokens: mgr}
}

// GET /ws/alerts
//
// Browsers cannot set Authorization headers on websocket upgrades, so the
// token rides in a query parameter. Auth is enforced only when a token
// manager is configured.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.Tokens != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := h.Tokens.Validate(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	sub := h.Hub.Subscribe(conn)
	h.Hub.Send(sub, realtime.Event{
		Type:    realtime.EventConnection,
		Message: "connected to alert stream",
	})

	// Blocks until the client goes away; unsubscribe happens inside.
	sub.ReadLoop()
}
