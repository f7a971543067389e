package observer

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

const writeWait = 10 * time.Second

// Envelope is the JSON shape each websocket peer receives.
type Envelope struct {
	Type    common.MessageType `json:"type"`
	ID      string             `json:"id"`
	Payload common.Message     `json:"payload"`
}

// Bridge streams every relayed message to websocket peers, such as a
// browser based diagnostics panel. It is read-only.
type Bridge struct {
	handle   orchestration.Handle
	upgrader websocket.Upgrader
	peers    atomic.Int64
}

func NewBridge(h orchestration.Handle) *Bridge {
	return &Bridge{
		handle: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler serves the bridge on /ws.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleConnections)
	return mux
}

// Peers is the number of connected websocket peers.
func (b *Bridge) Peers() int {
	return int(b.peers.Load())
}

func (b *Bridge) handleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer ws.Close()
	peerID := uuid.NewString()
	sub := b.handle.Subscribe()
	defer sub.Close()
	b.peers.Add(1)
	defer b.peers.Add(-1)
	log.Info().Str("peer_id", peerID).Str("addr", ws.RemoteAddr().String()).Msg("Panel connected")
	defer log.Info().Str("peer_id", peerID).Msg("Panel disconnected")

	// Peers never send anything meaningful; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("peer_id", peerID).Msg("Panel read error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.C():
			if !ok {
				ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(writeWait))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(Envelope{Type: msg.Type(), ID: msg.ID().String(), Payload: msg}); err != nil {
				log.Error().Err(err).Str("peer_id", peerID).Msg("Failed to forward message")
				return
			}
		}
	}
}
