// Package elevenlabs provides a voice.Renderer backed by the ElevenLabs HTTP
// synthesis API.
//
// Each enqueued fragment is synthesized as one request; the resulting PCM is
// handed to an injected AudioSink (typically the gateway, which forwards it
// to the avatar in the browser) and the playback duration is estimated from
// the PCM length at the configured sample rate.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

const (
	synthesisEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s/stream?output_format=%s"
	defaultModel         = "eleven_flash_v2_5"
	defaultOutputFmt     = "pcm_16000"
	defaultSampleRate    = 16000
	bytesPerSample       = 2 // 16-bit mono PCM
)

// AudioSink is the destination for synthesized audio. See [voice.AudioSink].
type AudioSink = voice.AudioSink

// Option is a functional option for configuring the Renderer.
type Option func(*Renderer)

// WithModel sets the ElevenLabs model ID.
func WithModel(model string) Option {
	return func(r *Renderer) { r.model = model }
}

// WithHTTPClient overrides the HTTP client used for synthesis requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Renderer) { r.httpClient = c }
}

// WithSampleRate sets the PCM sample rate used for duration estimates. Must
// match the requested output format.
func WithSampleRate(hz int) Option {
	return func(r *Renderer) { r.sampleRate = hz }
}

// Renderer implements voice.Renderer on the ElevenLabs synthesis API.
type Renderer struct {
	apiKey     string
	model      string
	outputFmt  string
	sampleRate int
	profile    voice.Profile
	sink       AudioSink
	httpClient *http.Client

	sessionOpen atomic.Bool

	// mu serialises synthesis requests so fragments reach the sink in
	// enqueue order.
	mu sync.Mutex

	// generation invalidates in-flight synthesis after a HardStop.
	generation atomic.Int64
}

// New constructs a Renderer. apiKey and profile.ID must be non-empty; sink
// receives the synthesized audio.
func New(apiKey string, profile voice.Profile, sink AudioSink, opts ...Option) (*Renderer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: apiKey must not be empty")
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("elevenlabs: profile.ID must not be empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("elevenlabs: sink must not be nil")
	}
	r := &Renderer{
		apiKey:     apiKey,
		model:      defaultModel,
		outputFmt:  defaultOutputFmt,
		sampleRate: defaultSampleRate,
		profile:    profile,
		sink:       sink,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// synthesisBody is the JSON request payload for the synthesis endpoint.
type synthesisBody struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// StartSession implements voice.Renderer.
func (r *Renderer) StartSession(_ context.Context) error {
	r.sessionOpen.Store(true)
	return nil
}

// EnqueueText implements voice.Renderer. It synthesizes the fragment,
// forwards the PCM to the sink, and returns the estimated playback duration.
func (r *Renderer) EnqueueText(ctx context.Context, text string) (time.Duration, error) {
	if !r.sessionOpen.Load() {
		return 0, voice.ErrNotReady
	}
	gen := r.generation.Load()

	r.mu.Lock()
	defer r.mu.Unlock()

	pcm, err := r.synthesize(ctx, text)
	if err != nil {
		return 0, err
	}
	if r.generation.Load() != gen {
		// Hard-stopped while synthesizing; the audio belongs to a dead turn.
		return 0, nil
	}

	d := r.estimateDuration(len(pcm))
	r.sink.Speak(text, pcm, d)
	return d, nil
}

// EndSession implements voice.Renderer.
func (r *Renderer) EndSession(_ context.Context) error {
	if r.sessionOpen.Swap(false) {
		r.sink.Flush()
	}
	return nil
}

// HardStop implements voice.Renderer.
func (r *Renderer) HardStop() {
	r.generation.Add(1)
	r.sessionOpen.Store(false)
	r.sink.Discard()
}

// Ready implements voice.Renderer. The HTTP renderer is always able to accept
// fragments; backpressure is handled by the serialised synthesis path.
func (r *Renderer) Ready() bool {
	return true
}

// synthesize performs one synthesis request and returns the raw PCM.
func (r *Renderer) synthesize(ctx context.Context, text string) ([]byte, error) {
	body := synthesisBody{
		Text:    text,
		ModelID: r.model,
	}
	if r.profile.Stability != 0 || r.profile.SimilarityBoost != 0 {
		body.VoiceSettings = &voiceSettings{
			Stability:       r.profile.Stability,
			SimilarityBoost: r.profile.SimilarityBoost,
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := fmt.Sprintf(synthesisEndpointFmt, r.profile.ID, r.outputFmt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, msg)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return pcm, nil
}

// estimateDuration converts a PCM byte count into playback time.
func (r *Renderer) estimateDuration(n int) time.Duration {
	samples := n / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(r.sampleRate)
}
