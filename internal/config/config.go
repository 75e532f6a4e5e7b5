// Package config provides the configuration schema, loader, and provider registry
// for the Greenroom interview server.
package config

import (
	"time"

	"github.com/greenroom-ai/greenroom/internal/rating"
	"github.com/greenroom-ai/greenroom/internal/session"
)

// LogLevel controls log verbosity for the Greenroom server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default returns a Config with development defaults: info logging on :8080
// and all interview tuning left to its package defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
	}
}

// Config is the root configuration structure for Greenroom.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
	Rating    RatingConfig    `yaml:"rating"`
}

// ServerConfig holds network and logging settings for the Greenroom server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Chat       ProviderEntry `yaml:"chat"`
	Transcribe ProviderEntry `yaml:"transcribe"`
	Voice      ProviderEntry `yaml:"voice"`
	Biometric  ProviderEntry `yaml:"biometric"`

	// ChatFallback, when set, is a secondary interviewer backend tried when
	// the primary fails or its circuit breaker is open.
	ChatFallback ProviderEntry `yaml:"chat_fallback"`

	// TranscribeFallback, when set, is a secondary transcription backend
	// tried when the primary fails or its circuit breaker is open.
	TranscribeFallback ProviderEntry `yaml:"transcribe_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// InterviewConfig holds the per-session defaults applied when a client does
// not override them at session creation.
type InterviewConfig struct {
	// Persona is the default interviewer personality.
	Persona string `yaml:"persona"`

	// CountdownSeconds is the pre-interview countdown duration.
	CountdownSeconds float64 `yaml:"countdown_seconds"`

	// FinishGraceSeconds is the delay between the backend marking the
	// interview finished and the session finalizing, so trailing speech can
	// play out.
	FinishGraceSeconds float64 `yaml:"finish_grace_seconds"`

	// MinFragmentLength is the sentence buffer length that must be exceeded
	// before terminal punctuation flushes a speech fragment.
	MinFragmentLength int `yaml:"min_fragment_length"`
}

// RatingConfig tunes the adaptive difficulty engine. Zero values fall back
// to the engine defaults.
type RatingConfig struct {
	// JudgeWeight and HeuristicWeight blend the backend judge's quality with
	// the local text heuristic. They should sum to 1.
	JudgeWeight     float64 `yaml:"judge_weight"`
	HeuristicWeight float64 `yaml:"heuristic_weight"`

	// PairingDivisor is the logistic divisor for the expected-outcome
	// formula.
	PairingDivisor float64 `yaml:"pairing_divisor"`

	// DisplayDivisor is the logistic divisor for the 0-100 display score. A
	// smaller value makes the displayed score more sensitive than the
	// underlying rating.
	DisplayDivisor float64 `yaml:"display_divisor"`

	// MomentumFactor scales how strongly the next question's difficulty
	// chases the candidate's recent rating deltas.
	MomentumFactor float64 `yaml:"momentum_factor"`

	// TrendThreshold is the absolute delta above which a turn counts as
	// rising or falling.
	TrendThreshold float64 `yaml:"trend_threshold"`

	// EaseStep is how far an easier-question request lowers the difficulty
	// opponent.
	EaseStep float64 `yaml:"ease_step"`
}

// Params converts the YAML tuning block into engine parameters, filling
// unset fields with the defaults.
func (rc RatingConfig) Params() rating.Params {
	p := rating.DefaultParams()
	if rc.JudgeWeight != 0 {
		p.JudgeWeight = rc.JudgeWeight
	}
	if rc.HeuristicWeight != 0 {
		p.HeuristicWeight = rc.HeuristicWeight
	}
	if rc.PairingDivisor != 0 {
		p.PairingDivisor = rc.PairingDivisor
	}
	if rc.DisplayDivisor != 0 {
		p.DisplayDivisor = rc.DisplayDivisor
	}
	if rc.MomentumFactor != 0 {
		p.MomentumFactor = rc.MomentumFactor
	}
	if rc.TrendThreshold != 0 {
		p.TrendThreshold = rc.TrendThreshold
	}
	if rc.EaseStep != 0 {
		p.EaseStep = rc.EaseStep
	}
	return p
}

// SessionConfig converts the interview defaults and rating tuning into a
// session configuration. The caller fills the per-session fields (ID, resume,
// job description, persona override).
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.Persona = c.Interview.Persona
	if c.Interview.CountdownSeconds > 0 {
		sc.Countdown = time.Duration(c.Interview.CountdownSeconds * float64(time.Second))
	}
	if c.Interview.FinishGraceSeconds > 0 {
		sc.FinishGrace = time.Duration(c.Interview.FinishGraceSeconds * float64(time.Second))
	}
	if c.Interview.MinFragmentLength > 0 {
		sc.MinFragmentLen = c.Interview.MinFragmentLength
	}
	sc.Rating = c.Rating.Params()
	return sc
}
