// Package stream publishes engine frames to websocket spectators and lets a
// client follow such a stream.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/gridsnake/engine"
)

// Event types on the wire.
const (
	TypeGameInfo = "game_info"
	TypeFrame    = "frame"
	TypeGameEnd  = "game_end"
)

// GameEvent is the envelope of every websocket message.
type GameEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// GameInfo announces a new session before its first frame.
type GameInfo struct {
	SessionID      string `json:"session_id"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	OuterBlockSize int    `json:"outer_block_size"`
	InnerBlockSize int    `json:"inner_block_size"`
}

// GameEnd closes a session.
type GameEnd struct {
	SessionID   string `json:"session_id"`
	Score       int    `json:"score"`
	Ticks       int    `json:"ticks"`
	Termination string `json:"termination"`
}

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub is an engine.Presenter that fans frames out to every connected
// websocket client. Clients that cannot keep up are disconnected rather
// than slowing the game.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	session  string
	lastInfo []byte
	lastMsg  []byte
	lastEnd  []byte
	closed   bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(GameEvent{Type: typ, Data: data})
}

// Present implements engine.Presenter. It never blocks on the network.
func (h *Hub) Present(f engine.Frame) error {
	var msgs [][]byte

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	if f.SessionID != h.session || h.lastInfo == nil {
		info, err := encode(TypeGameInfo, GameInfo{
			SessionID:      f.SessionID,
			Width:          f.Width,
			Height:         f.Height,
			OuterBlockSize: f.OuterBlockSize,
			InnerBlockSize: f.InnerBlockSize,
		})
		if err != nil {
			return err
		}
		h.session = f.SessionID
		h.lastInfo = info
		h.lastEnd = nil
		msgs = append(msgs, info)
	}

	frame, err := encode(TypeFrame, f)
	if err != nil {
		return err
	}
	h.lastMsg = frame
	msgs = append(msgs, frame)

	if f.GameOver {
		end, err := encode(TypeGameEnd, GameEnd{
			SessionID:   f.SessionID,
			Score:       f.Score,
			Ticks:       f.Tick,
			Termination: f.Termination,
		})
		if err != nil {
			return err
		}
		h.lastEnd = end
		msgs = append(msgs, end)
	}

	for c := range h.clients {
		for _, m := range msgs {
			if !h.offer(c, m) {
				break
			}
		}
	}
	return nil
}

// offer queues m for c, dropping c when its buffer is full. Caller holds mu.
func (h *Hub) offer(c *client, m []byte) bool {
	select {
	case c.send <- m:
		return true
	default:
		h.logger.Warn("dropping slow spectator", "remote", c.conn.RemoteAddr().String())
		delete(h.clients, c)
		c.close()
		return false
	}
}

// Clients is the number of connected spectators.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. A late joiner first receives the current game_info, the latest
// frame and, if the session is over, its game_end.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.lastInfo != nil {
		c.send <- h.lastInfo
	}
	if h.lastMsg != nil {
		c.send <- h.lastMsg
	}
	if h.lastEnd != nil {
		c.send <- h.lastEnd
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("spectator connected", "remote", conn.RemoteAddr().String())
	go h.readLoop(c)
	h.writeLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	for m := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, m); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close disconnects every spectator. Later frames are ignored.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	return nil
}
