// Package httpapi provides a transcribe.Provider backed by the interview
// backend's multipart upload endpoint.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client used for uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcribe.Provider against the backend's
// /api/stream-process endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Provider for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("transcribe httpapi: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// resultBody is the JSON response of the upload endpoint.
type resultBody struct {
	Text string `json:"text"`
}

// Transcribe implements transcribe.Provider. It uploads the audio (and the
// optional video) as a multipart form and decodes the transcript reply.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("transcribe httpapi: empty audio")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := writeFilePart(w, "audio", "answer"+extFor(req.AudioMIME), req.AudioMIME, req.Audio); err != nil {
		return nil, fmt.Errorf("transcribe httpapi: write audio part: %w", err)
	}
	if len(req.Video) > 0 {
		if err := writeFilePart(w, "video", "camera"+extFor(req.VideoMIME), req.VideoMIME, req.Video); err != nil {
			return nil, fmt.Errorf("transcribe httpapi: write video part: %w", err)
		}
	}
	if err := w.WriteField("session_id", req.SessionID); err != nil {
		return nil, fmt.Errorf("transcribe httpapi: write session field: %w", err)
	}
	if err := w.WriteField("timestamp_sec", strconv.FormatFloat(req.TimestampSec, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("transcribe httpapi: write timestamp field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("transcribe httpapi: finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/stream-process", &body)
	if err != nil {
		return nil, fmt.Errorf("transcribe httpapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcribe httpapi: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcribe httpapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out resultBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("transcribe httpapi: decode response: %w", err)
	}
	return &transcribe.Result{Text: out.Text}, nil
}

// writeFilePart adds one file part with an explicit content type; the default
// multipart helper hardcodes application/octet-stream.
func writeFilePart(w *multipart.Writer, field, filename, mime string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// extFor maps common recorder container types to file extensions.
func extFor(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "mp4"):
		return ".mp4"
	default:
		return ".bin"
	}
}
