// Package biometric reads the real-time inference channel: a push source of
// periodic gaze/confidence/fidget events produced by the video analysis
// backend.
//
// The orchestration core only folds these events into a display overlay; it
// never drives the channel. The gateway owns the connection lifecycle and
// closes the client when the session ends.
package biometric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Event kinds pushed by the inference backend.
const (
	KindVideo = "video_inference"
	KindAudio = "audio_inference"
)

// Event is one inference observation. Scores are in [0, 1].
type Event struct {
	Kind        string  `json:"type"`
	Gaze        float64 `json:"gaze"`
	Confidence  float64 `json:"confidence"`
	Fidget      float64 `json:"fidget"`
	TimestampMS int64   `json:"timestamp"`
}

// Overlay is the rolling display snapshot shown next to the candidate video,
// on a 0–100 scale. Video events replace the values; audio events blend
// confidence with the previous value so the two estimators meet halfway.
type Overlay struct {
	Gaze       int
	Confidence int
	Fidget     int
}

// Fold applies one event to the overlay and returns the updated snapshot.
func (o Overlay) Fold(ev Event) Overlay {
	switch ev.Kind {
	case KindVideo:
		o.Gaze = toPercent(ev.Gaze)
		o.Confidence = toPercent(ev.Confidence)
		o.Fidget = toPercent(ev.Fidget)
	case KindAudio:
		o.Confidence = (o.Confidence + toPercent(ev.Confidence)) / 2
	}
	return o
}

func toPercent(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 100
	}
	return int(v*100 + 0.5)
}

// Client reads inference events from the backend's WebSocket endpoint.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	closeOnce sync.Once
}

// Dial connects to the inference endpoint (e.g.
// "ws://127.0.0.1:8080/api/inference") and starts the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("biometric: dial %q: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan Event, 32),
	}
	go c.readLoop(ctx)
	return c, nil
}

// Events returns the read-only event stream. The channel is closed when the
// connection drops or the client is closed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// readLoop decodes frames until the connection ends. Malformed frames are
// logged and skipped.
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.events)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("biometric: read loop ended", "err", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("biometric: skipping malformed inference event", "err", err)
			continue
		}
		if ev.Kind != KindVideo && ev.Kind != KindAudio {
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Close terminates the connection. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return err
}
