package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Authenticator resolves a bearer token to a user id. Mobile WebSocket
// libraries can't set headers on upgrade, so the token rides in the query
// string.
type Authenticator func(token string) (userID string, err error)

// HandleWebSocket returns an HTTP handler that authenticates the token query
// parameter, upgrades the connection, and runs it as a Hub client.
func HandleWebSocket(hub *Hub, authenticate Authenticator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := authenticate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // mobile clients connect from app origins
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}
