package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/greenroom-ai/greenroom/internal/config"
	"github.com/greenroom-ai/greenroom/internal/rating"
)

const fullYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  chat:
    name: backend
    base_url: "http://127.0.0.1:8000"
  transcribe:
    name: httpapi
    base_url: "http://127.0.0.1:8000"
  transcribe_fallback:
    name: httpapi
    base_url: "http://127.0.0.1:8001"
  voice:
    name: elevenlabs
    api_key: "xi-key"
    options:
      voice_id: "pNInz6obpgDQGcFmaJgB"
      stability: 0.5
  biometric:
    name: websocket
    base_url: "ws://127.0.0.1:8000/api/inference"
interview:
  persona: friendly
  countdown_seconds: 3
  finish_grace_seconds: 2
  min_fragment_length: 15
rating:
  judge_weight: 0.7
  heuristic_weight: 0.3
  display_divisor: 40
  ease_step: 100
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.Chat.Name != "backend" {
		t.Errorf("chat provider: got %q", cfg.Providers.Chat.Name)
	}
	if fb := cfg.Providers.TranscribeFallback; fb.Name != "httpapi" || fb.BaseURL != "http://127.0.0.1:8001" {
		t.Errorf("transcribe fallback: got %+v", fb)
	}
	if cfg.Providers.Voice.APIKey != "xi-key" {
		t.Errorf("voice api_key: got %q", cfg.Providers.Voice.APIKey)
	}
	if got := cfg.Providers.Voice.Options["voice_id"]; got != "pNInz6obpgDQGcFmaJgB" {
		t.Errorf("voice_id option: got %v", got)
	}
	if cfg.Interview.Persona != "friendly" {
		t.Errorf("persona: got %q", cfg.Interview.Persona)
	}
	if cfg.Rating.JudgeWeight != 0.7 {
		t.Errorf("judge_weight: got %v", cfg.Rating.JudgeWeight)
	}
}

func TestSessionConfig_AppliesTuning(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sc := cfg.SessionConfig()
	if sc.Countdown != 3*time.Second {
		t.Errorf("countdown: got %v", sc.Countdown)
	}
	if sc.FinishGrace != 2*time.Second {
		t.Errorf("finish grace: got %v", sc.FinishGrace)
	}
	if sc.MinFragmentLen != 15 {
		t.Errorf("min fragment length: got %d", sc.MinFragmentLen)
	}
	if sc.Persona != "friendly" {
		t.Errorf("persona: got %q", sc.Persona)
	}
	if sc.Rating.JudgeWeight != 0.7 || sc.Rating.HeuristicWeight != 0.3 {
		t.Errorf("rating weights: got %+v", sc.Rating)
	}
}

func TestSessionConfig_EmptyUsesDefaults(t *testing.T) {
	cfg := &config.Config{}
	sc := cfg.SessionConfig()

	if sc.Countdown != 3*time.Second {
		t.Errorf("countdown default: got %v", sc.Countdown)
	}
	if sc.FinishGrace != 2*time.Second {
		t.Errorf("finish grace default: got %v", sc.FinishGrace)
	}
	if sc.MinFragmentLen != 15 {
		t.Errorf("min fragment length default: got %d", sc.MinFragmentLen)
	}
	if sc.Rating != rating.DefaultParams() {
		t.Errorf("rating defaults: got %+v", sc.Rating)
	}
}

func TestRatingConfig_PartialOverride(t *testing.T) {
	rc := config.RatingConfig{DisplayDivisor: 80}
	p := rc.Params()

	if p.DisplayDivisor != 80 {
		t.Errorf("display divisor: got %v", p.DisplayDivisor)
	}
	def := rating.DefaultParams()
	if p.JudgeWeight != def.JudgeWeight || p.EaseStep != def.EaseStep {
		t.Errorf("unset fields must keep defaults: got %+v", p)
	}
}
