package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
	"github.com/st4rkjatt/videoChatSimple/internal/signaling"
)

// NewUpgrader configures the websocket upgrader. An empty allowedOrigins
// accepts any origin. Requests without an Origin header (non-browser
// clients such as the CLI) are always accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		Subprotocols:    protocol.Subprotocols(),
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			return lo.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		// The pumps own the connection from here on
		hub.Attach(conn, protocol.CodecFor(conn.Subprotocol()))
	}
}

// HealthCheck reports that the process is serving.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// NewRouter wires /health, /ws and /metrics.
func NewRouter(hub *signaling.Hub, allowedOrigins []string, log *slog.Logger) *http.ServeMux {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("GET /ws", ServeWs(hub, NewUpgrader(allowedOrigins), log))
	mux.Handle("GET /metrics", hub.Metrics().Handler())
	return mux
}
