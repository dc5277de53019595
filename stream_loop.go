package main

import (
	"context"
	"log"
	"time"

	"github.com/radiostream/pkg/stream"
)

// runStatusLoop pushes the station status to websocket clients every
// interval, and announces each session end as it is published. It owns the
// server's session-end subscription and cancels it on return.
func (s *Server) runStatusLoop(ctx context.Context, interval time.Duration) {
	defer s.unsubscribe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case end, ok := <-s.stops:
			if !ok {
				return
			}
			log.Printf("[DEBUG] announcing end of session %s (%s)", end.SessionID, end.Reason)
			s.broadcast(stoppedMessage(end))
		case <-ticker.C:
			if s.clients.Count() == 0 {
				continue
			}
			s.broadcast(statusMessage(s.st.Status()))
		}
	}
}

func stoppedMessage(end stream.Stop) map[string]interface{} {
	msg := map[string]interface{}{
		"type":       "stream_stopped",
		"session_id": end.SessionID,
		"reason":     end.Reason.String(),
	}
	if end.Err != nil {
		msg["error"] = end.Err.Error()
	}
	return msg
}
