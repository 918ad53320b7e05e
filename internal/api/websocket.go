package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"ripple/internal/gateway"
	"ripple/internal/logger"
)

func newUpgrader(clientOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == clientOrigin
		},
	}
}

// HandleWebSocket performs the gateway handshake. The token arrives as
// connection-establishment metadata (query parameter, header, or cookie) and
// is verified before the upgrade; a missing or invalid token rejects the
// connection before any application event is processed.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	user, err := h.verifier.Verify(token)
	if err != nil {
		logger.Log.Warn("websocket handshake rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := gateway.NewClient(h.hub, conn, user)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
