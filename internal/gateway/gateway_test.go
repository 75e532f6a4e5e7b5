package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/greenroom-ai/greenroom/internal/config"
	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	chatmock "github.com/greenroom-ai/greenroom/pkg/provider/chat/mock"
	transmock "github.com/greenroom-ai/greenroom/pkg/provider/transcribe/mock"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

// emitRenderer is a renderer that forwards every fragment straight to the
// gateway's audio emit callback, standing in for a synthesis backend.
type emitRenderer struct {
	emit SpeechEmit
}

func (r *emitRenderer) StartSession(context.Context) error { return nil }

func (r *emitRenderer) EnqueueText(_ context.Context, text string) (time.Duration, error) {
	r.emit(text, []byte{0x01}, 10*time.Millisecond)
	return 0, nil
}

func (r *emitRenderer) EndSession(context.Context) error { return nil }
func (r *emitRenderer) HardStop()                        {}
func (r *emitRenderer) Ready() bool                      { return true }

var _ voice.Renderer = (*emitRenderer)(nil)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Interview.CountdownSeconds = 0.001
	return cfg
}

func newTestServer(t *testing.T, cp *chatmock.Provider) *httptest.Server {
	t.Helper()
	srv, err := NewServer(Deps{
		Config:      testConfig(),
		Chat:        cp,
		Transcriber: &transmock.Provider{},
		NewRenderer: func(emit SpeechEmit) voice.Renderer {
			return &emitRenderer{emit: emit}
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func dialInterview(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/interview"
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// readUntil reads server frames until pred returns true, failing the test on
// timeout. All frames seen along the way are returned.
func readUntil(t *testing.T, ws *websocket.Conn, pred func(serverMessage) bool) []serverMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var seen []serverMessage
	for {
		var msg serverMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			t.Fatalf("read (after %d frames): %v", len(seen), err)
		}
		seen = append(seen, msg)
		if pred(msg) {
			return seen
		}
	}
}

func TestInterviewHandshakeStreamsIntro(t *testing.T) {
	cp := &chatmock.Provider{Events: []chat.TurnEvent{
		{Token: "Welcome to the interview. "},
		{Done: true, NextIndex: 0},
	}}
	ts := newTestServer(t, cp)
	ws := dialInterview(t, ts)

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, clientMessage{
		Op:         opBeginSession,
		ResumeText: "resume",
		JobText:    "job",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "speech_end" })

	var sawLive, sawAppend, sawAudio bool
	for _, m := range seen {
		switch m.Type {
		case "phase":
			if m.Phase == "live" {
				sawLive = true
			}
		case "transcript_append":
			if m.Entry != nil && m.Entry.Speaker == "interviewer" {
				sawAppend = true
			}
		case "audio":
			if strings.Contains(m.Text, "Welcome") {
				sawAudio = true
			}
		}
	}
	if !sawLive {
		t.Error("no live phase frame before speech_end")
	}
	if !sawAppend {
		t.Error("no interviewer transcript_append frame")
	}
	if !sawAudio {
		t.Error("no audio frame carrying the intro text")
	}

	calls := cp.Calls()
	if len(calls) != 1 {
		t.Fatalf("StreamTurn calls = %d, want 1", len(calls))
	}
	if calls[0].Req.ResumeText != "resume" || calls[0].Req.JobText != "job" {
		t.Errorf("turn request missing client context: %+v", calls[0].Req)
	}
}

func TestControlOpsBeforeBeginAreRejected(t *testing.T) {
	ts := newTestServer(t, &chatmock.Provider{})
	ws := dialInterview(t, ts)

	ctx := context.Background()
	for _, op := range []string{opSubmitUtterance, opSkipQuestion, opEasierQuestion, opForceCoding} {
		if err := wsjson.Write(ctx, ws, clientMessage{Op: op}); err != nil {
			t.Fatalf("write %s: %v", op, err)
		}
		seen := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "error" })
		last := seen[len(seen)-1]
		if !strings.Contains(last.Message, "no active session") {
			t.Errorf("op %s: error = %q, want no-active-session", op, last.Message)
		}
	}
}

func TestDoubleBeginIsRejected(t *testing.T) {
	cp := &chatmock.Provider{Events: []chat.TurnEvent{{Done: true}}}
	ts := newTestServer(t, cp)
	ws := dialInterview(t, ts)

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, clientMessage{Op: opBeginSession}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "speech_end" })

	if err := wsjson.Write(ctx, ws, clientMessage{Op: opBeginSession}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "error" })
	if msg := seen[len(seen)-1].Message; !strings.Contains(msg, "already started") {
		t.Errorf("error = %q, want already-started", msg)
	}
}

func TestUnknownOpReportsError(t *testing.T) {
	ts := newTestServer(t, &chatmock.Provider{})
	ws := dialInterview(t, ts)

	if err := wsjson.Write(context.Background(), ws, clientMessage{Op: "reboot"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "error" })
	if msg := seen[len(seen)-1].Message; !strings.Contains(msg, "reboot") {
		t.Errorf("error = %q, want it to name the op", msg)
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	ts := newTestServer(t, &chatmock.Provider{})

	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestConfigSourceAppliesToNewSessions(t *testing.T) {
	cp := &chatmock.Provider{Events: []chat.TurnEvent{{Done: true}}}

	var mu sync.Mutex
	current := testConfig()
	current.Interview.Persona = "strict"

	srv, err := NewServer(Deps{
		Config:      current,
		Chat:        cp,
		Transcriber: &transmock.Provider{},
		NewRenderer: func(emit SpeechEmit) voice.Renderer {
			return &emitRenderer{emit: emit}
		},
		ConfigSource: func() *config.Config {
			mu.Lock()
			defer mu.Unlock()
			return current
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	ws := dialInterview(t, ts)
	if err := wsjson.Write(ctx, ws, clientMessage{Op: opBeginSession}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "speech_end" })

	// Swap in a reloaded snapshot; the next session must be built from it.
	reloaded := testConfig()
	reloaded.Interview.Persona = "supportive"
	mu.Lock()
	current = reloaded
	mu.Unlock()

	ws2 := dialInterview(t, ts)
	if err := wsjson.Write(ctx, ws2, clientMessage{Op: opBeginSession}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, ws2, func(m serverMessage) bool { return m.Type == "speech_end" })

	calls := cp.Calls()
	if len(calls) != 2 {
		t.Fatalf("StreamTurn calls = %d, want 2", len(calls))
	}
	if calls[0].Req.Persona != "strict" {
		t.Errorf("first session persona = %q, want strict", calls[0].Req.Persona)
	}
	if calls[1].Req.Persona != "supportive" {
		t.Errorf("second session persona = %q, want the reloaded value", calls[1].Req.Persona)
	}
}

func TestNewSessionID(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 30, 5, 250*int(time.Millisecond), time.UTC)
	got := newSessionID(at)
	want := "interview-20250309T143005.250Z"
	if got != want {
		t.Errorf("newSessionID = %q, want %q", got, want)
	}
}
