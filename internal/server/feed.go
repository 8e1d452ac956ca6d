package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/meistericham/pcrtrack/internal/domain"
)

const feedPingInterval = 30 * time.Second

// handleNotificationFeed upgrades the connection to WebSocket and streams
// the caller's notifications as they are created. The session token is
// accepted via the Authorization header or a token query parameter, since
// browser WebSocket clients cannot set headers.
func (g *Gateway) handleNotificationFeed(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sess, err := g.provider.ParseSession(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	auth := g.resolver.Resolve(r.Context(), sess)
	if auth.Allowed == nil || !*auth.Allowed {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"pcrtrack-feed-v1"},
	})
	if err != nil {
		g.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	g.streamNotifications(r.Context(), conn, sess.UserID)
}

func (g *Gateway) streamNotifications(ctx context.Context, conn *websocket.Conn, userID string) {
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	feed, cancel := g.store.Watch()
	defer cancel()

	// Read loop only detects disconnects; clients do not send messages.
	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()
	go func() {
		defer readCancel()
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readCtx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(readCtx); err != nil {
				g.logger.Debug("feed ping failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return
			}
		case n, ok := <-feed:
			if !ok {
				return
			}
			if n.UserID != userID {
				continue
			}
			if err := g.writeNotification(readCtx, conn, n); err != nil {
				g.logger.Debug("feed write failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

func (g *Gateway) writeNotification(ctx context.Context, conn *websocket.Conn, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
