package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// hub fans out messages that are not scene updates, such as load errors, to
// every connected renderer.
type hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan []byte]struct{})}
}

func (h *hub) add() chan []byte {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) remove(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// broadcast drops the message for clients whose queue is full.
func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// handleWS pushes the current scene on connect and again after every change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.composer.Subscribe()
	defer cancel()
	notices := s.hub.add()
	defer s.hub.remove(notices)

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Debug("renderer connected")

	// Renderers never send anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debug("renderer write failed", "err", err)
			return false
		}
		return true
	}
	sendScene := func(v any) bool {
		msg, err := s.encodeEnvelope(MessageScene, v)
		if err != nil {
			logger.Error("encode scene", "err", err)
			return false
		}
		return send(msg)
	}

	if !sendScene(s.composer.Snapshot()) {
		return
	}
	for {
		select {
		case <-closed:
			logger.Debug("renderer disconnected")
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok || !sendScene(snap) {
				return
			}
		case msg := <-notices:
			if !send(msg) {
				return
			}
		}
	}
}
