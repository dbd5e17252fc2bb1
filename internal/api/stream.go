package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/clinical-sim/internal/presenter"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSessionStream pushes snapshot, feedback and outcome messages for one session
// over a websocket. The first message is the current snapshot.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := UserFromContext(r.Context())

	view, err := s.sessions.Get(r.Context(), id, userID)
	if err != nil {
		respondFailure(w, err, "open stream", "session_id", id)
		return
	}

	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "stream_unavailable", "live stream is not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err, "session_id", id)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	slog.Info("session stream connected", "session_id", id, "user_id", userID)

	initial := presenter.Message{
		Type:      presenter.TypeSnapshot,
		SessionID: id,
		Data:      view,
		SentAt:    time.Now().UTC(),
	}
	if err := sendStreamMessage(conn, initial); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Client frames are discarded; reading is how a close is noticed
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err, "session_id", id)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session stream disconnected", "session_id", id)
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := sendStreamMessage(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				slog.Debug("failed to ping stream client", "error", err, "session_id", id)
				return
			}
		}
	}
}

func sendStreamMessage(conn *websocket.Conn, msg presenter.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err, "type", msg.Type)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err, "type", msg.Type)
		return err
	}
	return nil
}
