package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	content := `project: harbor
source_video: /videos/harbor.mp4
max_clip_duration: 4.5
keep_workspace: true
twelvelabs:
  index_id: idx
  video_id: vid
elevenlabs:
  voice_settings:
    stability: 0.3
    similarity_boost: 0.9
    speed: 1.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project != "harbor" || cfg.MaxClipDuration != 4.5 || !cfg.KeepWorkspace {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.OriginalAudioGain != 0.05 || cfg.OutputAudioCodec != "aac" || cfg.ElevenLabs.VoiceID == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.ElevenLabs.VoiceSettings.Stability != 0.3 {
		t.Fatalf("nested override lost: %+v", cfg.ElevenLabs)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("max_clip_seconds: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if cfg, err := LoadConfig(""); err != nil || cfg.MaxClipDuration != 6 {
		t.Fatalf("expected defaults for empty path, got %+v %v", cfg, err)
	}
}

func TestLoadConfig_NaNClipDurationFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte("project: p\nsource_video: /v.mp4\nmax_clip_duration: .nan\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(ModeAssemble); err == nil || !strings.Contains(err.Error(), "max clip") {
		t.Fatalf("expected max clip error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()
	base.Project = "p"
	base.SourceVideo = "/v.mp4"

	full := base
	full.RawText = "/raw.txt"
	full.OpenRouterAPIKey, full.TwelveLabsAPIKey, full.ElevenLabsAPIKey = "a", "b", "c"
	full.TwelveLabs.IndexID, full.TwelveLabs.VideoID = "i", "v"

	tests := []struct {
		name    string
		mutate  func(*Config)
		mode    Mode
		wantErr string
	}{
		{name: "assemble needs no keys", mutate: func(*Config) {}, mode: ModeAssemble},
		{name: "blank project", mutate: func(c *Config) { c.Project = " !! " }, mode: ModeAssemble, wantErr: "project"},
		{name: "zero max clip", mutate: func(c *Config) { c.MaxClipDuration = 0 }, mode: ModeAssemble, wantErr: "max clip"},
		{name: "nan max clip", mutate: func(c *Config) { c.MaxClipDuration = math.NaN() }, mode: ModeAssemble, wantErr: "max clip"},
		{name: "nan gain", mutate: func(c *Config) { c.NarrationAudioGain = math.NaN() }, mode: ModeAssemble, wantErr: "gains"},
		{name: "negative gain", mutate: func(c *Config) { c.OriginalAudioGain = -1 }, mode: ModeAssemble, wantErr: "gains"},
		{name: "run needs keys", mutate: func(c *Config) { c.RawText = "/raw.txt" }, mode: ModeRun, wantErr: "OPENROUTER_API_KEY"},
		{name: "run full", mutate: func(c *Config) { *c = full }, mode: ModeRun},
		{name: "run bad base url", mutate: func(c *Config) { *c = full; c.OpenRouter.BaseURL = "http://openrouter.ai" }, mode: ModeRun, wantErr: "https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		"OPENROUTER_API_KEY":  "or",
		"TWELVELABS_API_KEY":  "tl",
		"ELEVENLABS_API_KEY":  "el",
		"OPENROUTER_MODEL":    "m",
		"OPENROUTER_BASE_URL": "https://api.openrouter.ai",
	}
	cfg := DefaultConfig()
	cfg.FromEnv(func(k string) string { return env[k] })
	if cfg.OpenRouterAPIKey != "or" || cfg.TwelveLabsAPIKey != "tl" || cfg.ElevenLabsAPIKey != "el" {
		t.Fatalf("keys not loaded: %+v", cfg)
	}
	if cfg.OpenRouter.Model != "m" || cfg.OpenRouter.BaseURL != "https://api.openrouter.ai" {
		t.Fatalf("overrides not loaded: %+v", cfg.OpenRouter)
	}
}
