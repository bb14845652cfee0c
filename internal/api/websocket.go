package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// eventBuffer is the per-connection event backlog before events are dropped.
const eventBuffer = 256

// handleEvents upgrades the connection to a WebSocket and streams the
// caller's order events as JSON until either side closes. Cross-origin
// handshakes are refused unless the origin matches a configured pattern.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "owner", user, "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer c.CloseNow()

	id, ch := s.events.Subscribe(user, eventBuffer)
	defer s.events.Unsubscribe(id)
	s.log.Info("event stream subscribed", "owner", user, "sub_id", id)

	// Incoming messages are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("event stream closed", "owner", user, "sub_id", id)
			c.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c, e)
			cancel()
			if err != nil {
				s.log.Debug("event stream write failed", "owner", user, "error", err)
				return
			}
		}
	}
}
