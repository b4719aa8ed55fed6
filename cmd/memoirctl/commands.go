package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/memoira/internal/app"
	"github.com/MrWong99/memoira/internal/config"
	"github.com/MrWong99/memoira/internal/recording"
	"github.com/MrWong99/memoira/internal/transcript"
	"github.com/MrWong99/memoira/pkg/audio/quality"
	"github.com/MrWong99/memoira/pkg/provider/stt"
	oastt "github.com/MrWong99/memoira/pkg/provider/stt/openai"
	"github.com/MrWong99/memoira/pkg/provider/stt/whisper"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "memoirctl",
		Short: "Offline tools for Memoira recordings and transcripts",
		Long: `memoirctl runs Memoira's audio quality analysis, transcript formatting and
speech-to-text providers against local files.

Thresholds, hallucination phrases and family names are read from the server
config file when --config is given; built-in defaults are used otherwise.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Path to the server config file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(analyzeCmd(g))
	root.AddCommand(formatCmd(g))
	root.AddCommand(transcribeCmd(g))
	return root
}

// settings loads recording settings from the config file, or defaults.
func (g *globals) settings() (recording.Settings, *config.Config, error) {
	if g.configFile == "" {
		return recording.DefaultSettings(), &config.Config{}, nil
	}
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return recording.Settings{}, nil, err
	}
	return app.SettingsFromConfig(cfg), cfg, nil
}

type analyzeOutput struct {
	File     string           `json:"file"`
	Metrics  quality.Metrics  `json:"metrics"`
	Decision quality.Decision `json:"decision"`
}

func analyzeCmd(g *globals) *cobra.Command {
	var failOnReview bool
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Measure the quality of recorded audio",
		Long: `Decode each file, measure duration, silence ratio and energy, and print the
metrics and the accept/review decision as JSON.

Examples:
  memoirctl analyze take1.wav take2.wav
  memoirctl analyze --fail-on-review -c config.yaml answer.wav`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := g.settings()
			if err != nil {
				return err
			}
			th := st.Thresholds

			enc := newEncoder(cmd.OutOrStdout())
			review := 0
			for _, path := range args {
				blob, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				m := quality.Analyze(blob, &th)
				d := quality.Evaluate(m)
				if !d.Accepted() {
					review++
				}
				if err := enc.Encode(analyzeOutput{File: path, Metrics: m, Decision: d}); err != nil {
					return err
				}
			}
			if failOnReview && review > 0 {
				return fmt.Errorf("%d of %d recordings need review", review, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnReview, "fail-on-review", false, "Exit non-zero when any recording needs review")
	return cmd
}

func formatCmd(g *globals) *cobra.Command {
	var (
		durationMs   float64
		silenceRatio float64
		edit         bool
	)
	cmd := &cobra.Command{
		Use:   "format [TEXT|-]",
		Short: "Filter, format and score a transcript",
		Long: `Run the transcript pipeline over TEXT (or stdin when TEXT is "-" or absent)
and print the resulting record as JSON.

--edit treats the text as a user edit: the hallucination filter and name
correction are skipped.

Examples:
  memoirctl format "thanks for watching. my grandmother was born in 1931."
  echo "..." | memoirctl format --duration-ms 45000 --silence-ratio 0.2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := g.settings()
			if err != nil {
				return err
			}
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			audio := transcript.AudioSummary{DurationMs: durationMs, SilenceRatio: silenceRatio}

			var rec *transcript.Record
			if edit {
				rec = st.Pipeline.Edit(text, audio)
			} else {
				rec, err = st.Pipeline.Process(cmd.Context(), stt.Result{Text: text}, audio)
				if err != nil {
					return err
				}
			}
			return newEncoder(cmd.OutOrStdout()).Encode(rec)
		},
	}
	cmd.Flags().Float64Var(&durationMs, "duration-ms", 0, "Recording duration used for speech-rate checks")
	cmd.Flags().Float64Var(&silenceRatio, "silence-ratio", 0, "Silence ratio of the recording (0..1)")
	cmd.Flags().BoolVar(&edit, "edit", false, "Treat the text as a user edit")
	return cmd
}

type transcribeOutput struct {
	File     string             `json:"file"`
	Metrics  quality.Metrics    `json:"metrics"`
	Record   *transcript.Record `json:"record"`
	Provider string             `json:"provider"`
}

func transcribeCmd(g *globals) *cobra.Command {
	var (
		whisperURL string
		openaiKey  string
		model      string
		language   string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe a recording with a speech-to-text provider",
		Long: `Send FILE to a speech-to-text provider, run the transcript pipeline over the
result and print the record as JSON.

The provider is chosen by flag: --whisper-url for a whisper.cpp server or
--openai-key for the OpenAI API. Without either, the first provider in the
config file is used.

Examples:
  memoirctl transcribe --whisper-url http://localhost:8081 answer.wav
  memoirctl transcribe --openai-key "$OPENAI_API_KEY" --language es answer.wav`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := g.settings()
			if err != nil {
				return err
			}
			if language == "" {
				language = st.Language
			}
			name, p, err := pickProvider(cfg, whisperURL, openaiKey, model, language)
			if err != nil {
				return err
			}
			if c, ok := p.(io.Closer); ok {
				defer c.Close()
			}

			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			th := st.Thresholds
			m := quality.Analyze(blob, &th)

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			res, err := p.Transcribe(ctx, stt.Request{Audio: blob, ContentType: contentType(args[0]), Language: language})
			if err != nil {
				return fmt.Errorf("transcribe with %s: %w", name, err)
			}
			rec, err := st.Pipeline.Process(ctx, res, transcript.AudioSummary{DurationMs: m.DurationMs, SilenceRatio: m.SilenceRatio})
			if err != nil {
				return err
			}
			return newEncoder(cmd.OutOrStdout()).Encode(transcribeOutput{File: args[0], Metrics: m, Record: rec, Provider: name})
		},
	}
	cmd.Flags().StringVar(&whisperURL, "whisper-url", "", "whisper.cpp server URL")
	cmd.Flags().StringVar(&openaiKey, "openai-key", "", "OpenAI API key")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language hint (e.g. en, es)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}

func pickProvider(cfg *config.Config, whisperURL, openaiKey, model, language string) (string, stt.Provider, error) {
	switch {
	case whisperURL != "":
		opts := []whisper.Option{whisper.WithLanguage(language)}
		if model != "" {
			opts = append(opts, whisper.WithModel(model))
		}
		p, err := whisper.New(whisperURL, opts...)
		return "whisper", p, err
	case openaiKey != "":
		p, err := oastt.New(openaiKey, model, oastt.WithLanguage(language))
		return "openai", p, err
	}

	for _, e := range cfg.STT.Providers {
		switch e.Name {
		case "whisper":
			p, err := whisper.New(e.BaseURL, whisper.WithModel(e.Model), whisper.WithLanguage(language))
			return e.Name, p, err
		case "whisper-native":
			var opts []whisper.NativeOption
			if language != "" {
				opts = append(opts, whisper.WithNativeLanguage(language))
			}
			p, err := whisper.NewNative(e.Model, opts...)
			return e.Name, p, err
		case "openai":
			p, err := oastt.New(e.APIKey, e.Model, oastt.WithBaseURL(e.BaseURL), oastt.WithLanguage(language))
			return e.Name, p, err
		}
	}
	return "", nil, errors.New("no speech-to-text provider: pass --whisper-url or --openai-key, or configure stt.providers")
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".wav"):
		return "audio/wav"
	case strings.HasSuffix(strings.ToLower(path), ".webm"):
		return "audio/webm"
	case strings.HasSuffix(strings.ToLower(path), ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(strings.ToLower(path), ".mp3"):
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
