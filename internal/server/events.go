package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/stageleft/convoke/internal/bus"
)

// heartbeatInterval is how often an idle event stream is pinged so dead
// clients are detected and pruned.
const heartbeatInterval = 30 * time.Second

// handleEvents upgrades the request to a websocket and streams the meeting's
// live events as JSON envelopes. There is no replay: the client only sees
// events published after it connected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	if _, err := s.cfg.Store.GetMeeting(r.Context(), meetingID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "meeting_id", meetingID, "err", err)
		return
	}

	sub := s.cfg.Bus.Subscribe(meetingID)
	defer s.cfg.Bus.Unsubscribe(sub)

	s.metrics.EventSubscribers.Add(r.Context(), 1)
	defer s.metrics.EventSubscribers.Add(context.WithoutCancel(r.Context()), -1)

	slog.Info("event stream opened", "meeting_id", meetingID)
	err = s.streamEvents(r.Context(), conn, sub)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "stream ended")
	case websocket.CloseStatus(err) != -1:
		// Client closed the socket; nothing left to do.
	default:
		slog.Warn("event stream error", "meeting_id", meetingID, "err", err)
		conn.Close(websocket.StatusInternalError, "stream error")
	}
	slog.Info("event stream closed", "meeting_id", meetingID)
}

// streamEvents pumps bus events to the client until the subscriber is closed,
// the client disconnects, or ctx ends. Reads are drained in the background
// purely to surface client-side closes.
func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, sub *bus.Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Detect client disconnects: the read pump fails when the peer goes away.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Bus pruned or closed this subscriber.
				return nil
			}
			if err := wsjson.Write(ctx, conn, bus.NewEnvelope(ev)); err != nil {
				return err
			}
		case <-heartbeat.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return err
			}
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
