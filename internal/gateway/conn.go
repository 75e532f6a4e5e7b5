package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/greenroom-ai/greenroom/internal/rating"
	"github.com/greenroom-ai/greenroom/internal/session"
	"github.com/greenroom-ai/greenroom/pkg/biometric"
)

// maxMessageBytes bounds a single client frame. Utterance uploads carry
// whole audio/video blobs, so this is generous.
const maxMessageBytes = 32 << 20

// outBufferSize is the per-connection send queue. Messages beyond it are
// dropped rather than blocking the orchestration core.
const outBufferSize = 256

// Client control operations.
const (
	opBeginSession    = "begin_session"
	opSubmitUtterance = "submit_utterance"
	opSkipQuestion    = "skip_question"
	opEasierQuestion  = "easier_question"
	opForceCoding     = "force_coding"
	opEndSession      = "end_session"
)

// clientMessage is one control frame from the client. Audio and Video are
// base64 in transit, decoded by encoding/json.
type clientMessage struct {
	Op         string `json:"op"`
	ResumeText string `json:"resume_text,omitempty"`
	JobText    string `json:"job_text,omitempty"`
	Persona    string `json:"persona,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	AudioMIME  string `json:"audio_mime,omitempty"`
	Video      []byte `json:"video,omitempty"`
	VideoMIME  string `json:"video_mime,omitempty"`
}

// serverMessage is one push frame to the client.
type serverMessage struct {
	Type       string                   `json:"type"`
	Phase      session.Phase            `json:"phase,omitempty"`
	Index      *int                     `json:"index,omitempty"`
	Entry      *session.TranscriptEntry `json:"entry,omitempty"`
	Text       string                   `json:"text,omitempty"`
	Score      *float64                 `json:"score,omitempty"`
	Trend      rating.Trend             `json:"trend,omitempty"`
	Overlay    *biometric.Overlay       `json:"overlay,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Audio      []byte                   `json:"audio,omitempty"`
	DurationMS int64                    `json:"duration_ms,omitempty"`
}

// wsConn wraps one client connection with a buffered send queue so event
// fan-out never blocks the session.
type wsConn struct {
	ws  *websocket.Conn
	out chan serverMessage
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, out: make(chan serverMessage, outBufferSize)}
}

// send queues a message; full queues drop the frame.
func (c *wsConn) send(msg serverMessage) {
	select {
	case c.out <- msg:
	default:
		slog.Warn("gateway: send queue full, dropping frame", "type", msg.Type)
	}
}

// writePump serializes all writes to the socket.
func (c *wsConn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if err := wsjson.Write(ctx, c.ws, msg); err != nil {
				if ctx.Err() == nil {
					slog.Debug("gateway: write failed", "err", err)
				}
				return
			}
		}
	}
}

// wsSink fans session events out to the client.
type wsSink struct {
	conn *wsConn
}

var _ session.EventSink = (*wsSink)(nil)

func (s *wsSink) PhaseChanged(p session.Phase) {
	s.conn.send(serverMessage{Type: "phase", Phase: p})
}

func (s *wsSink) TranscriptAppended(index int, entry session.TranscriptEntry) {
	s.conn.send(serverMessage{Type: "transcript_append", Index: &index, Entry: &entry})
}

func (s *wsSink) TranscriptUpdated(index int, text string) {
	s.conn.send(serverMessage{Type: "transcript_update", Index: &index, Text: text})
}

func (s *wsSink) PressureChanged(score float64, trend rating.Trend) {
	s.conn.send(serverMessage{Type: "pressure", Score: &score, Trend: trend})
}

func (s *wsSink) OverlayChanged(o biometric.Overlay) {
	s.conn.send(serverMessage{Type: "overlay", Overlay: &o})
}

func (s *wsSink) Alert(message string) {
	s.conn.send(serverMessage{Type: "alert", Message: message})
}

func (s *wsSink) SpeechEnded() {
	s.conn.send(serverMessage{Type: "speech_end"})
}

// handleInterview upgrades the connection and runs one interview for its
// lifetime.
func (s *Server) handleInterview(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "err", err)
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newWSConn(ws)
	go conn.writePump(ctx)

	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.deps.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	var (
		sess *session.Session
		bio  *biometric.Client
	)
	defer func() {
		if sess != nil {
			sess.End()
		}
		if bio != nil {
			_ = bio.Close()
		}
		ws.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("gateway: read ended", "err", err)
			}
			return
		}

		switch msg.Op {
		case opBeginSession:
			if sess != nil {
				conn.send(serverMessage{Type: "error", Message: "session already started"})
				continue
			}
			sess = s.startSession(ctx, conn, msg)
			bio = s.attachBiometrics(ctx, sess)

		case opSubmitUtterance:
			if sess == nil {
				conn.send(serverMessage{Type: "error", Message: "no active session"})
				continue
			}
			// Transcription blocks on the collaborator; keep reading control
			// frames while it runs.
			go func(m clientMessage) {
				if err := sess.SubmitUtterance(ctx, m.Audio, m.AudioMIME, m.Video, m.VideoMIME); err != nil {
					slog.Warn("gateway: utterance rejected", "err", err)
				}
			}(msg)

		case opSkipQuestion:
			s.control(conn, sess, func() error { return sess.SkipCurrentQuestion(ctx) })

		case opEasierQuestion:
			s.control(conn, sess, func() error { return sess.RequestEasierQuestion(ctx) })

		case opForceCoding:
			s.control(conn, sess, func() error { return sess.ForceCodingChallenge(ctx) })

		case opEndSession:
			if sess != nil {
				sess.End()
			}
			return

		default:
			conn.send(serverMessage{Type: "error", Message: "unknown op: " + msg.Op})
		}
	}
}

// startSession builds the per-connection session from the current config
// snapshot plus the client's overrides and kicks off the countdown.
func (s *Server) startSession(ctx context.Context, conn *wsConn, msg clientMessage) *session.Session {
	scfg := s.deps.ConfigSource().SessionConfig()
	scfg.ID = newSessionID(time.Now())
	scfg.ResumeText = msg.ResumeText
	scfg.JobText = msg.JobText
	if msg.Persona != "" {
		scfg.Persona = msg.Persona
	}

	renderer := s.deps.NewRenderer(func(text string, pcm []byte, d time.Duration) {
		conn.send(serverMessage{Type: "audio", Text: text, Audio: pcm, DurationMS: d.Milliseconds()})
	})

	sess := session.New(scfg, s.deps.Chat, s.deps.Transcriber, renderer, &wsSink{conn: conn})
	slog.Info("gateway: session starting", "session_id", scfg.ID)
	sess.Begin(ctx)
	return sess
}

// attachBiometrics connects the inference channel when configured. Failures
// are logged and ignored; the interview runs without the overlay.
func (s *Server) attachBiometrics(ctx context.Context, sess *session.Session) *biometric.Client {
	url := s.deps.ConfigSource().Providers.Biometric.BaseURL
	if url == "" || sess == nil {
		return nil
	}
	client, err := biometric.Dial(ctx, url)
	if err != nil {
		slog.Warn("gateway: biometric channel unavailable", "err", err)
		return nil
	}
	go func() {
		for ev := range client.Events() {
			sess.ApplyBiometric(ev)
		}
	}()
	return client
}

// control runs a session operation and reports rejections to the client.
func (s *Server) control(conn *wsConn, sess *session.Session, op func() error) {
	if sess == nil {
		conn.send(serverMessage{Type: "error", Message: "no active session"})
		return
	}
	if err := op(); err != nil {
		conn.send(serverMessage{Type: "error", Message: err.Error()})
	}
}
