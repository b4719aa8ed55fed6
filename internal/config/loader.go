package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidSTTNames lists the speech-to-text providers shipped with Memoira.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTNames = []string{"whisper", "whisper-native", "openai"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
//
// Out-of-range quality thresholds are not errors: they are clamped when the
// thresholds are built and each correction is logged here.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ListDebounce < 0 {
		errs = append(errs, fmt.Errorf("server.list_debounce %s must not be negative", cfg.Server.ListDebounce))
	}
	if lf := cfg.Server.LogFile; lf != nil {
		if lf.Path == "" {
			errs = append(errs, errors.New("server.log_file.path is required when log_file is set"))
		}
		if lf.MaxSizeMB < 0 || lf.MaxBackups < 0 || lf.MaxAgeDays < 0 {
			errs = append(errs, errors.New("server.log_file sizes and counts must not be negative"))
		}
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Quality
	if _, fixes := cfg.Quality.Thresholds(); len(fixes) > 0 {
		for _, fix := range fixes {
			slog.Warn("quality threshold corrected", "fix", fix)
		}
	}

	// Transcript
	if cfg.Transcript.ParagraphSize < 0 {
		errs = append(errs, fmt.Errorf("transcript.paragraph_size %d must not be negative", cfg.Transcript.ParagraphSize))
	}
	for i, name := range cfg.Transcript.FamilyNames {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("transcript.family_names[%d] is empty", i))
		}
	}
	if len(cfg.Transcript.Phrases) > 0 && len(cfg.Transcript.ExtraPhrases) > 0 {
		slog.Warn("transcript.phrases replaces the built-in list; extra_phrases are appended to it")
	}

	// STT
	errs = append(errs, validateSTT(&cfg.STT)...)

	// Store
	errs = append(errs, validateStore(&cfg.Store)...)

	// Telemetry
	if tr := cfg.Telemetry.Traces; tr != "" && !tr.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.traces %q is invalid; valid values: none, stdout", tr))
	}
	if r := cfg.Telemetry.SampleRatio; r != nil && (*r <= 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %v must be in (0, 1]", *r))
	}

	return errors.Join(errs...)
}

func validateSTT(s *STTConfig) []error {
	var errs []error
	if len(s.Providers) == 0 {
		slog.Warn("no stt providers configured; recordings can be saved but not transcribed")
	}
	seen := make(map[string]int, len(s.Providers))
	for i, p := range s.Providers {
		prefix := fmt.Sprintf("stt.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of stt.providers[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
		validateProviderName(p.Name)

		switch p.Name {
		case "whisper":
			if p.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s: provider whisper requires base_url", prefix))
			}
		case "whisper-native":
			if p.Model == "" {
				errs = append(errs, fmt.Errorf("%s: provider whisper-native requires model (path to the model file)", prefix))
			}
		case "openai":
			if p.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s: provider openai requires api_key", prefix))
			}
		}
	}
	if s.Breaker.MaxFailures < 0 || s.Breaker.HalfOpenMax < 0 || s.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("stt.breaker values must not be negative"))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("stt.timeout %s must not be negative", s.Timeout))
	}
	return errs
}

func validateStore(s *StoreConfig) []error {
	var errs []error
	if s.Backend != "" && !s.Backend.IsValid() {
		return []error{fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres, supabase", s.Backend)}
	}
	switch s.Backend {
	case StorePostgres:
		if s.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
		if s.BlobDir == "" {
			slog.Warn("store.blob_dir is empty; recording audio will be kept in memory and lost on restart")
		}
	case StoreSupabase:
		if s.Supabase.URL == "" {
			errs = append(errs, errors.New("store.supabase.url is required for the supabase backend"))
		}
		if s.Supabase.ServiceKey == "" {
			errs = append(errs, errors.New("store.supabase.service_key is required for the supabase backend"))
		}
		if s.Supabase.Bucket == "" {
			errs = append(errs, errors.New("store.supabase.bucket is required for the supabase backend"))
		}
	default:
		slog.Warn("store.backend is memory; recordings will be lost on restart")
	}
	return errs
}

// validateProviderName logs a warning if name is not one of [ValidSTTNames].
func validateProviderName(name string) {
	if slices.Contains(ValidSTTNames, name) {
		return
	}
	slog.Warn("unknown stt provider name; may be a typo or a provider registered by a plugin",
		"name", name,
		"known", ValidSTTNames,
	)
}
