package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/anneliv/orato/internal/live"
	"github.com/anneliv/orato/pkg/types"
)

// handleLive upgrades the request to a WebSocket and runs one live tracker
// for the lifetime of the connection. The client streams recognition events
// as JSON text messages; the server streams back one snapshot per tick.
//
// Nothing from a live session is persisted. Closing the socket discards all
// running estimates.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The practice frontend is served from a different origin than the
		// API during development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "tracker terminated")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.ActiveLiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveLiveSessions.Add(context.WithoutCancel(ctx), -1)

	tracker := live.New(s.liveCfg)
	tracker.Start(ctx)
	defer tracker.Stop()

	s.log.Info("live session started", "remote", r.RemoteAddr)

	go s.pushSnapshots(ctx, cancel, conn, tracker)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				s.log.Warn("live session read error", "err", err)
			}
			break
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev types.RecognitionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("dropping malformed recognition event", "err", err)
			continue
		}
		tracker.OnEvent(ev)
	}

	s.log.Info("live session ended", "remote", r.RemoteAddr)
	conn.Close(websocket.StatusNormalClosure, "")
}

// pushSnapshots forwards tracker ticks to the client until the connection or
// the context goes away.
func (s *Server) pushSnapshots(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, tracker *live.Tracker) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-tracker.Updates():
			data, err := json.Marshal(snap)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
			s.metrics.LiveTicks.Add(ctx, 1)
		}
	}
}
