package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// DefaultHeartbeat is the ping interval of notification streams
const DefaultHeartbeat = 30 * time.Second

const streamWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The actor header is set by the proxy, which also enforces the origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHandler pushes the actor's new notifications over a websocket as
// JSON messages until the client goes away
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromContext(ctx)
	logger := logging.From(ctx)

	// Subscribe before the handshake completes so no push is missed
	ch, unsubscribe := s.hub.Subscribe(actor)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		logger.Warn("failed to upgrade notification stream", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close notification stream", "error", err)
		}
	}()

	logger.Info("notification stream opened")

	pongWait := s.heartbeat * 2
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Read loop only consumes control frames and detects closure
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				logger.Warn("failed to push notification",
					"notification_id", n.ID,
					"error", goerr.Wrap(err, "websocket write failed"))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				logger.Debug("heartbeat failed", "error", err)
				return
			}

		case <-closed:
			logger.Info("notification stream closed")
			return

		case <-ctx.Done():
			return
		}
	}
}
