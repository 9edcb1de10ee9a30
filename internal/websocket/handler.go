package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// FamilyResolver checks that a user may join a family's channel. It
// returns false when the user holds no active membership.
type FamilyResolver func(familyID, userID int64) (bool, error)

// HandleWebSocket returns an HTTP handler that upgrades connections and
// runs them as hub clients scoped to the requested family. The caller's
// user id must already be resolved by the auth middleware.
func HandleWebSocket(hub *Hub, userID func(*http.Request) int64, allowed FamilyResolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID, err := strconv.ParseInt(r.URL.Query().Get("family_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid family_id", http.StatusBadRequest)
			return
		}

		ok, err := allowed(familyID, userID(r))
		if err != nil {
			http.Error(w, "membership check failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, familyID)
		client.Run(r.Context())
	}
}
