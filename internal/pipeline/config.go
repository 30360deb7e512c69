package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forPelevin/storyreel/internal/ports/adapters/elevenlabs"
	"github.com/forPelevin/storyreel/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/storyreel/internal/ports/adapters/openrouter"
	"gopkg.in/yaml.v3"
)

// Config is the project config file plus the secrets that only come from
// the environment.
type Config struct {
	Project     string `yaml:"project"`
	SourceVideo string `yaml:"source_video"`
	RawText     string `yaml:"raw_text"`
	OutDir      string `yaml:"out_dir"`
	// LedgerPath is relative to OutDir unless absolute. Blank disables the
	// run ledger.
	LedgerPath    string `yaml:"ledger_path"`
	KeepWorkspace bool   `yaml:"keep_workspace"`

	MaxClipDuration    float64 `yaml:"max_clip_duration"`
	OriginalAudioGain  float64 `yaml:"original_audio_gain"`
	NarrationAudioGain float64 `yaml:"narration_audio_gain"`

	FFmpegPath       string `yaml:"ffmpeg_path"`
	OutputVideoCodec string `yaml:"output_video_codec"`
	OutputAudioCodec string `yaml:"output_audio_codec"`
	MixAudioCodec    string `yaml:"mix_audio_codec"`
	Preset           string `yaml:"preset"`
	CRF              int    `yaml:"crf"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	TwelveLabs TwelveLabsConfig `yaml:"twelvelabs"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`

	OpenRouterAPIKey string `yaml:"-"`
	TwelveLabsAPIKey string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

type OpenRouterConfig struct {
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`
}

type TwelveLabsConfig struct {
	BaseURL       string   `yaml:"base_url,omitempty"`
	IndexID       string   `yaml:"index_id"`
	VideoID       string   `yaml:"video_id"`
	SearchOptions []string `yaml:"search_options"`
}

type ElevenLabsConfig struct {
	BaseURL       string                   `yaml:"base_url,omitempty"`
	VoiceID       string                   `yaml:"voice_id"`
	ModelID       string                   `yaml:"model_id"`
	OutputFormat  string                   `yaml:"output_format"`
	VoiceSettings elevenlabs.VoiceSettings `yaml:"voice_settings"`
}

func DefaultConfig() Config {
	return Config{
		OutDir:             "out",
		LedgerPath:         "runs.db",
		MaxClipDuration:    6.0,
		OriginalAudioGain:  0.05,
		NarrationAudioGain: 1.0,
		FFmpegPath:         "ffmpeg",
		OutputVideoCodec:   ffmpeg.DefaultVideoCodec,
		OutputAudioCodec:   ffmpeg.DefaultAudioCodec,
		MixAudioCodec:      ffmpeg.DefaultMixCodec,
		Preset:             ffmpeg.DefaultPreset,
		CRF:                ffmpeg.DefaultCRF,
		OpenRouter: OpenRouterConfig{
			Model: openrouter.DefaultModel,
		},
		TwelveLabs: TwelveLabsConfig{
			SearchOptions: []string{"visual", "audio"},
		},
		ElevenLabs: ElevenLabsConfig{
			VoiceID:       elevenlabs.DefaultVoiceID,
			ModelID:       elevenlabs.DefaultModelID,
			OutputFormat:  elevenlabs.DefaultOutputFormat,
			VoiceSettings: elevenlabs.DefaultVoiceSettings(),
		},
	}
}

// LoadConfig reads a YAML project config over DefaultConfig. An empty path
// returns the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv fills the secrets and env-only overrides.
func (c *Config) FromEnv(getenv func(string) string) {
	c.OpenRouterAPIKey = getenv("OPENROUTER_API_KEY")
	c.TwelveLabsAPIKey = getenv("TWELVELABS_API_KEY")
	c.ElevenLabsAPIKey = getenv("ELEVENLABS_API_KEY")
	if v := getenv("OPENROUTER_MODEL"); v != "" {
		c.OpenRouter.Model = v
	}
	if v := getenv("OPENROUTER_BASE_URL"); v != "" {
		c.OpenRouter.BaseURL = v
	}
}

// Mode selects which inputs Validate requires.
type Mode string

const (
	ModeRun      Mode = "run"
	ModeAssemble Mode = "assemble"
)

func (c Config) Validate(mode Mode) error {
	if normalizePathSegment(c.Project) == "" {
		return errors.New("project is empty")
	}
	if c.SourceVideo == "" {
		return errors.New("source video is empty")
	}
	if c.OutDir == "" {
		return errors.New("out dir is empty")
	}
	// Negated comparisons so NaN is rejected too.
	if !(c.MaxClipDuration > 0) {
		return fmt.Errorf("max clip duration must be > 0")
	}
	if !(c.OriginalAudioGain >= 0) || !(c.NarrationAudioGain >= 0) {
		return fmt.Errorf("audio gains must be >= 0")
	}
	if mode != ModeRun {
		return nil
	}

	if c.RawText == "" {
		return errors.New("raw text path is empty")
	}
	if c.OpenRouterAPIKey == "" {
		return errors.New("OPENROUTER_API_KEY is not set")
	}
	if c.TwelveLabsAPIKey == "" {
		return errors.New("TWELVELABS_API_KEY is not set")
	}
	if c.ElevenLabsAPIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is not set")
	}
	if c.TwelveLabs.IndexID == "" || c.TwelveLabs.VideoID == "" {
		return errors.New("twelvelabs index_id and video_id are required")
	}
	return openrouter.ValidateBaseURL(c.OpenRouter.BaseURL, c.OpenRouter.AllowedHosts)
}

func (c Config) ledgerPath() string {
	if c.LedgerPath == "" || filepath.IsAbs(c.LedgerPath) {
		return c.LedgerPath
	}
	return filepath.Join(c.OutDir, c.LedgerPath)
}
