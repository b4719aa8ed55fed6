package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// QualityChanged is true when any analysis threshold override changed.
	QualityChanged bool

	// TranscriptChanged is true when phrases, paragraph size, family names
	// or the language hint changed.
	TranscriptChanged bool

	// ListDebounceChanged is true when server.list_debounce changed.
	ListDebounceChanged bool

	// RestartRequired names the sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// HotReloadable reports whether d contains a change that can be applied
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.QualityChanged || d.TranscriptChanged || d.ListDebounceChanged
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.HotReloadable() && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListDebounceChanged = old.Server.ListDebounce != new.Server.ListDebounce

	ot, _ := old.Quality.Thresholds()
	nt, _ := new.Quality.Thresholds()
	d.QualityChanged = ot != nt

	d.TranscriptChanged = diffTranscript(&old.Transcript, &new.Transcript)

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MaxUploadBytes != new.Server.MaxUploadBytes ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) ||
		!reflect.DeepEqual(old.Server.LogFile, new.Server.LogFile) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.STT, new.STT) {
		d.RestartRequired = append(d.RestartRequired, "stt")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if !reflect.DeepEqual(old.Telemetry, new.Telemetry) {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func diffTranscript(old, new *TranscriptConfig) bool {
	return old.ParagraphSize != new.ParagraphSize ||
		old.Language != new.Language ||
		!slices.Equal(old.Phrases, new.Phrases) ||
		!slices.Equal(old.ExtraPhrases, new.ExtraPhrases) ||
		!slices.Equal(old.FamilyNames, new.FamilyNames)
}
