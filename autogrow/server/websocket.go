package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/dashboard"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleWebSocket streams every fragment replacement to the browser, starting with the current state
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("client_id", uuid.NewString()))
	logger.Debug("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	updates, unsubscribe := s.view.Subscribe(64)
	defer unsubscribe()
	defer s.metrics.ClientConnected()()

	for _, fragment := range s.view.Fragments() {
		if err := writeFragment(conn, fragment); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case fragment, ok := <-updates:
			if !ok {
				return
			}
			if err := writeFragment(conn, fragment); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("websocket client disconnected")
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeFragment(conn *websocket.Conn, fragment dashboard.Fragment) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(fragment)
}
