package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/memoira/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "negative sizes",
			yaml: "server:\n  max_upload_bytes: -1\n  list_debounce: -1s\n",
			want: []string{"max_upload_bytes", "list_debounce"},
		},
		{
			name: "log file without path",
			yaml: "server:\n  log_file:\n    max_size_mb: 10\n",
			want: []string{"log_file.path"},
		},
		{
			name: "tls without key",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"server.tls"},
		},
		{
			name: "duplicate provider",
			yaml: "stt:\n  providers:\n    - name: whisper\n      base_url: http://a\n    - name: whisper\n      base_url: http://b\n",
			want: []string{"duplicate"},
		},
		{
			name: "provider requirements",
			yaml: "stt:\n  providers:\n    - name: whisper\n    - name: whisper-native\n    - name: openai\n    - api_key: x\n",
			want: []string{"requires base_url", "requires model", "requires api_key", "stt.providers[3].name is required"},
		},
		{
			name: "store backend",
			yaml: "store:\n  backend: sqlite\n",
			want: []string{"store.backend"},
		},
		{
			name: "postgres without dsn",
			yaml: "store:\n  backend: postgres\n",
			want: []string{"postgres_dsn"},
		},
		{
			name: "supabase without credentials",
			yaml: "store:\n  backend: supabase\n",
			want: []string{"supabase.url", "supabase.service_key", "supabase.bucket"},
		},
		{
			name: "transcript",
			yaml: "transcript:\n  paragraph_size: -2\n  family_names: [\"  \"]\n",
			want: []string{"paragraph_size", "family_names[0]"},
		},
		{
			name: "telemetry",
			yaml: "telemetry:\n  traces: jaeger\n  sample_ratio: 1.5\n",
			want: []string{"telemetry.traces", "telemetry.sample_ratio"},
		},
		{
			name: "zero sample ratio",
			yaml: "telemetry:\n  sample_ratio: 0\n",
			want: []string{"telemetry.sample_ratio"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_SupabaseComplete(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  backend: supabase
  supabase:
    url: https://abc.supabase.co
    service_key: service-key
    bucket: recordings
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Supabase.Bucket != "recordings" {
		t.Errorf("bucket: got %q", cfg.Store.Supabase.Bucket)
	}
}

func TestValidate_UnknownProviderIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("stt:\n  providers:\n    - name: custom\n")); err != nil {
		t.Fatalf("unknown provider names should not fail validation, got %v", err)
	}
}
