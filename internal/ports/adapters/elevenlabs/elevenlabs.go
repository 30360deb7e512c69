// Package elevenlabs synthesizes narration audio with the ElevenLabs
// text-to-speech API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apiclient"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultVoiceID      = "JBFqnCBsd6RMkjVDRZzb"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"

	requestTimeout = 3 * time.Minute
)

type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost"`
	Speed           float64 `json:"speed" yaml:"speed"`
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: 1.1}
}

type Options struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Settings     VoiceSettings
}

type Adapter struct {
	opts Options
	api  *apiclient.Client
	log  zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Adapter {
	if opts.VoiceID == "" {
		opts.VoiceID = DefaultVoiceID
	}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = DefaultOutputFormat
	}
	if opts.Settings == (VoiceSettings{}) {
		opts.Settings = DefaultVoiceSettings()
	}
	log = log.With().Str("component", "elevenlabs").Logger()
	return &Adapter{
		opts: opts,
		log:  log,
		api: &apiclient.Client{
			Service: "elevenlabs",
			BaseURL: apiclient.NormalizeBaseURL(opts.BaseURL, DefaultBaseURL),
			Key:     opts.APIKey,
			Authorize: func(h http.Header, key string) {
				h.Set("xi-api-key", key)
			},
			Timeout: requestTimeout,
			Log:     log,
		},
	}
}

// Synthesize writes the spoken text to outPath, replacing any existing file.
// A failed request leaves no partial file behind.
func (a *Adapter) Synthesize(ctx context.Context, text, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("elevenlabs tts: empty text")
	}
	body, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       a.opts.ModelID,
		"voice_settings": a.opts.Settings,
	})
	if err != nil {
		return fmt.Errorf("elevenlabs tts: marshal request: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("elevenlabs tts: %w", err)
	}

	tmp := outPath + ".part"
	path := "/v1/text-to-speech/" + url.PathEscape(a.opts.VoiceID) + "?output_format=" + url.QueryEscape(a.opts.OutputFormat)
	err = a.api.Do(ctx, http.MethodPost, path, "application/json", body, func(r io.Reader) error {
		return writeFile(tmp, r)
	})
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("elevenlabs tts: %w", err)
	}

	if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmp)
		return fmt.Errorf("elevenlabs tts: replace %s: %w", outPath, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return fmt.Errorf("elevenlabs tts: %w", err)
	}
	a.log.Info().Str("path", outPath).Msg("narration audio saved")
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("empty audio response")
	}
	return nil
}
