package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: log verbosity and
// the interview/rating tuning applied to sessions created after the reload.
// Provider and server changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is true if any per-session default changed.
	InterviewChanged bool

	// RatingChanged is true if any difficulty-engine parameter changed.
	RatingChanged bool

	// ProvidersChanged is true if any provider entry changed. Not
	// hot-reloadable; reported so the operator can be warned.
	ProvidersChanged bool
}

// Any reports whether the diff contains any tracked change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.InterviewChanged || d.RatingChanged || d.ProvidersChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interview != new.Interview {
		d.InterviewChanged = true
	}
	if old.Rating != new.Rating {
		d.RatingChanged = true
	}

	if !providerEntryEqual(old.Providers.Chat, new.Providers.Chat) ||
		!providerEntryEqual(old.Providers.Transcribe, new.Providers.Transcribe) ||
		!providerEntryEqual(old.Providers.Voice, new.Providers.Voice) ||
		!providerEntryEqual(old.Providers.Biometric, new.Providers.Biometric) ||
		!providerEntryEqual(old.Providers.ChatFallback, new.Providers.ChatFallback) ||
		!providerEntryEqual(old.Providers.TranscribeFallback, new.Providers.TranscribeFallback) {
		d.ProvidersChanged = true
	}

	return d
}

// providerEntryEqual compares entries field by field; the Options map keeps
// ProviderEntry from being comparable directly.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
