package websocket

import (
	"log/slog"
	"net/http"

	"trovr-backend/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Mobile and kiosk clients send no stable Origin
		return true
	},
}

// HandleWebSocket upgrades HTTP connection to WebSocket. Browsers cannot set
// headers on the upgrade request, so the token comes from ?token=.
func HandleWebSocket(hub *Hub, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			claims, err := middleware.ParseToken(jwtSecret, tokenString)
			if err != nil {
				slog.Info("❌ [WEBSOCKET] invalid token in query parameter", "err", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userClaims, ok = claims, true
		}
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("❌ [WEBSOCKET] upgrade failed", "err", err)
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, conn, hub)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
