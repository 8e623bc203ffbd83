package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API already runs behind the CORS layer; the token, not the
	// origin, is the access control here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents handles GET /ws/events
// It upgrades to a websocket and pushes the full public event list as JSON
// whenever it changes, starting with the current snapshot.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshots, cancel, err := h.sync.WatchPublicEvents(r.Context())
	if err != nil {
		h.log.Error("websocket subscribe failed", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(time.Second))
		return
	}
	defer cancel()

	// Drain reads so pings are answered and a client close ends the feed.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for events := range snapshots {
		if err := conn.WriteJSON(events); err != nil {
			return
		}
	}
}
