package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var adminUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// adminEvents godoc
// @Summary Live-tail script errors and tick summaries
// @Tags Admin
// @Security BearerAuth
// @Router /admin/events [get]
func (s *Server) adminEvents(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "ADMIN_FEED_UNAVAILABLE")
		return
	}
	conn, err := adminUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logInternal("/admin/events", err)
		return
	}
	defer conn.Close()

	events, cancel := s.eng.SubscribeAdminEvents()
	defer cancel()

	// A reader goroutine does nothing but notice the client went away;
	// the admin feed is one-directional.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, _ := json.Marshal(ev)
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
