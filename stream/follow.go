package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/gridsnake/engine"
)

// FollowConfig tunes Follow. Zero values use the defaults.
type FollowConfig struct {
	ConnectTimeout time.Duration
}

// Follow connects to a Hub at url and calls handle for each event, in
// order, until the server closes the stream, ctx is done or handle fails.
// A normal close from the server returns nil.
func Follow(ctx context.Context, url string, cfg FollowConfig, handle func(GameEvent) error) error {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		var event GameEvent
		if err := json.Unmarshal(message, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}

var ErrWrongType = errors.New("unexpected event type")

// DecodeFrame extracts the frame carried by a frame event.
func DecodeFrame(ev GameEvent) (engine.Frame, error) {
	var f engine.Frame
	if ev.Type != TypeFrame {
		return f, fmt.Errorf("%w: %s", ErrWrongType, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
