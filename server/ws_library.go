package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"clipfm/logger"
)

const (
	wsWriteWait  = 30 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var libraryUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LibraryFeedHandler upgrades the connection and streams library change
// events to the client as they are published. Browsers cannot set an
// Authorization header on a websocket, so the token rides a query param.
func (h *APIHandler) LibraryFeedHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		logger.Warn("invalid library feed token", logger.ErrorField(err))
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := libraryUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade library feed",
			logger.String("userId", identity.UserID),
			logger.ErrorField(err),
		)
		return
	}
	defer conn.Close()

	logger.Info("library feed connected", logger.String("userId", identity.UserID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.library.Subscribe(ctx, identity.UserID)
	if sub == nil {
		logger.Warn("library feed without redis, closing",
			logger.String("userId", identity.UserID))
		return
	}
	defer sub.Close()

	// Reader goroutine: the client never sends data, but reading is the
	// only way to observe pongs and the close frame.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	events := sub.Channel()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
