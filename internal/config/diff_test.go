package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/memoira/internal/config"
)

func ptr[T any](v T) *T { return &v }

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo},
		Quality:    config.QualityConfig{MinDurationMs: ptr(2000.0)},
		Transcript: config.TranscriptConfig{FamilyNames: []string{"Eleanor"}},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.HotReloadable() {
		t.Error("log level change should be hot-reloadable")
	}
}

func TestDiff_Quality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		old  config.QualityConfig
		new  config.QualityConfig
		want bool
	}{
		{"unset vs unset", config.QualityConfig{}, config.QualityConfig{}, false},
		{"explicit default equals unset", config.QualityConfig{}, config.QualityConfig{MinDurationMs: ptr(1000.0)}, false},
		{"changed value", config.QualityConfig{WindowMs: ptr(50.0)}, config.QualityConfig{WindowMs: ptr(20.0)}, true},
		{"clamped values compare equal", config.QualityConfig{SilenceThreshold: ptr(1.0)}, config.QualityConfig{SilenceThreshold: ptr(5.0)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := config.Diff(&config.Config{Quality: tc.old}, &config.Config{Quality: tc.new})
			if d.QualityChanged != tc.want {
				t.Errorf("QualityChanged = %v, want %v", d.QualityChanged, tc.want)
			}
		})
	}
}

func TestDiff_Transcript(t *testing.T) {
	t.Parallel()
	old := &config.Config{Transcript: config.TranscriptConfig{FamilyNames: []string{"Eleanor"}}}
	new := &config.Config{Transcript: config.TranscriptConfig{FamilyNames: []string{"Eleanor", "Marjorie"}}}

	d := config.Diff(old, new)
	if !d.TranscriptChanged {
		t.Error("expected TranscriptChanged=true")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("transcript changes need no restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", ListDebounce: time.Second},
		STT:    config.STTConfig{Providers: []config.ProviderEntry{{Name: "whisper", BaseURL: "http://a"}}},
		Store:  config.StoreConfig{Backend: config.StoreMemory},
	}
	new := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090", ListDebounce: 2 * time.Second},
		STT:       config.STTConfig{Providers: []config.ProviderEntry{{Name: "whisper", BaseURL: "http://b"}}},
		Store:     config.StoreConfig{Backend: config.StorePostgres, PostgresDSN: "postgres://x"},
		Telemetry: config.TelemetryConfig{Traces: config.TracesStdout},
	}

	d := config.Diff(old, new)
	want := []string{"server", "stt", "store", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.ListDebounceChanged {
		t.Error("expected ListDebounceChanged=true")
	}
}
