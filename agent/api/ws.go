package api

import (
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// handleEventsWS streams a call's events until it ends or the client leaves.
// The first message is the current snapshot.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	id := c.Params("id")
	sess, err := s.receptionist.Get(id)
	if err != nil {
		_ = c.WriteJSON(map[string]string{"error": contractx.PublicMessage(err)})
		_ = c.Close()
		return
	}

	events, cancel := sess.Subscribe()
	defer cancel()

	if err := c.WriteJSON(sess.Snapshot()); err != nil {
		return
	}

	// The read loop only notices the client going away.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for evt := range events {
		if err := c.WriteJSON(evt); err != nil {
			log.Debug().Err(err).Str("session_id", id).Msg("event stream client gone")
			return
		}
	}
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
}
