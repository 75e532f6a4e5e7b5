package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"backend", "openai"},
	"transcribe": {"httpapi"},
	"voice":      {"elevenlabs"},
	"biometric":  {"websocket"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("transcribe", cfg.Providers.Transcribe.Name)
	validateProviderName("voice", cfg.Providers.Voice.Name)
	validateProviderName("biometric", cfg.Providers.Biometric.Name)
	validateProviderName("chat", cfg.Providers.ChatFallback.Name)
	validateProviderName("transcribe", cfg.Providers.TranscribeFallback.Name)

	// Collaborator availability warnings.
	if cfg.Providers.Chat.Name == "" {
		slog.Warn("no chat provider configured; interview sessions cannot generate questions")
	}
	if cfg.Providers.Transcribe.Name == "" {
		slog.Warn("no transcription provider configured; candidates cannot submit spoken answers")
	}
	if cfg.Providers.Voice.Name == "" {
		slog.Warn("no voice provider configured; the interviewer will be silent")
	}

	// Interview tuning.
	if cfg.Interview.CountdownSeconds < 0 {
		errs = append(errs, fmt.Errorf("interview.countdown_seconds %.2f must not be negative", cfg.Interview.CountdownSeconds))
	}
	if cfg.Interview.FinishGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("interview.finish_grace_seconds %.2f must not be negative", cfg.Interview.FinishGraceSeconds))
	}
	if cfg.Interview.MinFragmentLength < 0 {
		errs = append(errs, fmt.Errorf("interview.min_fragment_length %d must not be negative", cfg.Interview.MinFragmentLength))
	}

	// Rating tuning.
	rc := cfg.Rating
	if rc.JudgeWeight < 0 || rc.JudgeWeight > 1 {
		errs = append(errs, fmt.Errorf("rating.judge_weight %.2f is out of range [0, 1]", rc.JudgeWeight))
	}
	if rc.HeuristicWeight < 0 || rc.HeuristicWeight > 1 {
		errs = append(errs, fmt.Errorf("rating.heuristic_weight %.2f is out of range [0, 1]", rc.HeuristicWeight))
	}
	if rc.JudgeWeight != 0 && rc.HeuristicWeight != 0 {
		if sum := rc.JudgeWeight + rc.HeuristicWeight; sum < 0.999 || sum > 1.001 {
			errs = append(errs, fmt.Errorf("rating.judge_weight and rating.heuristic_weight sum to %.3f, want 1", sum))
		}
	}
	if rc.PairingDivisor < 0 {
		errs = append(errs, fmt.Errorf("rating.pairing_divisor %.2f must not be negative", rc.PairingDivisor))
	}
	if rc.DisplayDivisor < 0 {
		errs = append(errs, fmt.Errorf("rating.display_divisor %.2f must not be negative", rc.DisplayDivisor))
	}
	if rc.EaseStep < 0 {
		errs = append(errs, fmt.Errorf("rating.ease_step %.2f must not be negative", rc.EaseStep))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
