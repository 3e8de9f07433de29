package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
	pongWait     = 60 * time.Second
)

type viewer struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (v *viewer) close() {
	v.closeOnce.Do(func() {
		v.conn.Close()
	})
}

// Hub fans battle snapshots out to websocket viewers subscribed to a
// battle. Slow viewers are dropped instead of blocking publishers.
type Hub struct {
	mu       sync.RWMutex
	viewers  map[shared.BattleID]map[*viewer]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		viewers: make(map[shared.BattleID]map[*viewer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish implements battle.Broadcaster.
func (h *Hub) Publish(ctx context.Context, b *battle.Battle) error {
	if h.Viewers(b.ID) == 0 {
		return nil
	}
	payload, err := json.Marshal(NewSnapshot(b))
	if err != nil {
		return err
	}

	var slow []*viewer
	h.mu.RLock()
	for v := range h.viewers[b.ID] {
		select {
		case v.send <- payload:
		default:
			slow = append(slow, v)
		}
	}
	h.mu.RUnlock()

	for _, v := range slow {
		h.logger.Warn("dropping slow battle viewer", zap.String("battle_id", string(b.ID)))
		h.remove(b.ID, v)
	}
	return nil
}

// Viewers counts subscribers of a battle.
func (h *Hub) Viewers(id shared.BattleID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers[id])
}

// Serve upgrades the request and streams snapshots of the battle until
// the viewer disconnects. initial, when set, is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id shared.BattleID, initial *battle.Battle) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	v := &viewer{conn: conn, send: make(chan []byte, sendBuffer)}
	if initial != nil {
		if payload, err := json.Marshal(NewSnapshot(initial)); err == nil {
			v.send <- payload
		}
	}
	h.add(id, v)
	go h.writePump(id, v)
	h.readPump(id, v)
	return nil
}

func (h *Hub) add(id shared.BattleID, v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.viewers[id] == nil {
		h.viewers[id] = make(map[*viewer]struct{})
	}
	h.viewers[id][v] = struct{}{}
}

func (h *Hub) remove(id shared.BattleID, v *viewer) {
	h.mu.Lock()
	if subs, ok := h.viewers[id]; ok {
		if _, present := subs[v]; present {
			delete(subs, v)
			close(v.send)
		}
		if len(subs) == 0 {
			delete(h.viewers, id)
		}
	}
	h.mu.Unlock()
	v.close()
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Hub) readPump(id shared.BattleID, v *viewer) {
	defer h.remove(id, v)
	v.conn.SetReadLimit(512)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(id shared.BattleID, v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(id, v)
	}()
	for {
		select {
		case message, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown disconnects every viewer.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	all := h.viewers
	h.viewers = make(map[shared.BattleID]map[*viewer]struct{})
	h.mu.Unlock()
	for _, subs := range all {
		for v := range subs {
			close(v.send)
			v.close()
		}
	}
}
