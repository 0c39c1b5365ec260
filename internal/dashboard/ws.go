package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

func (s *Server) addWatcher() chan struct{} {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()
	return ch
}

func (s *Server) removeWatcher(ch chan struct{}) {
	s.watchMu.Lock()
	delete(s.watchers, ch)
	s.watchMu.Unlock()
}

// handleWS streams the view model: once on connect, then on every
// synchronizer change or health flip. A ping keeps idle connections alive.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("dashboard: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	views, unsubscribe := s.state.Subscribe()
	defer unsubscribe()
	nudge := s.addWatcher()
	defer s.removeWatcher(nudge)

	// Inbound frames are ignored; reading surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.page()); err != nil {
			slog.Debug("dashboard: websocket write failed", "err", err)
			return false
		}
		return true
	}

	for {
		select {
		case _, ok := <-views:
			if !ok || !send() {
				return
			}
		case <-nudge:
			if !send() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
