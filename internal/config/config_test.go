package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigEmbeddedDefaults(t *testing.T) {
	t.Setenv("VEDGE_ROOT_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("http_addr=%q, want :8090", cfg.HTTPAddr)
	}
	if cfg.Engine.Model != "gpt-4o-realtime-preview" {
		t.Fatalf("engine.model=%q, want the embedded default", cfg.Engine.Model)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameDuration != 30 {
		t.Fatalf("audio defaults=%+v, want 16000/30", cfg.Audio)
	}
	if cfg.Audio.SilenceWindow != 2000 {
		t.Fatalf("silence_window=%d, want 2000", cfg.Audio.SilenceWindow)
	}
	if cfg.Session.VADSource != "remote" {
		t.Fatalf("vad_source=%q, want remote", cfg.Session.VADSource)
	}
	if cfg.Bridge.CommandsTopic != "voice/commands" || cfg.Bridge.EventsTopic != "voice/events" {
		t.Fatalf("bridge topics=%+v, want voice/commands and voice/events", cfg.Bridge)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfig(t, `
system_config:
  port: 9000
audio:
  sample_rate: 8000
session:
  vad_source: LOCAL
engine:
  api_key: file-key
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("http_addr=%q, want :9000", cfg.HTTPAddr)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Fatalf("sample_rate=%d, want 8000", cfg.Audio.SampleRate)
	}
	if cfg.Session.VADSource != "local" {
		t.Fatalf("vad_source=%q, want local", cfg.Session.VADSource)
	}
	if cfg.Engine.APIKey != "file-key" {
		t.Fatalf("api_key=%q, want file-key", cfg.Engine.APIKey)
	}
}

func TestLoadConfigNormalizesOutOfRangeValues(t *testing.T) {
	path := writeConfig(t, `
audio:
  trigger_ratio: 5.0
  release_ratio: -1.0
  silence_window: 0
session:
  vad_source: banana
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Audio.TriggerRatio != 0.7 {
		t.Fatalf("trigger_ratio=%v, want 0.7", cfg.Audio.TriggerRatio)
	}
	if cfg.Audio.ReleaseRatio != 0.9 {
		t.Fatalf("release_ratio=%v, want 0.9", cfg.Audio.ReleaseRatio)
	}
	if cfg.Audio.SilenceWindow != 2000 {
		t.Fatalf("silence_window=%d, want 2000", cfg.Audio.SilenceWindow)
	}
	if cfg.Session.VADSource != "remote" {
		t.Fatalf("vad_source=%q, want remote fallback", cfg.Session.VADSource)
	}
}

func TestLoadConfigDerivesPaths(t *testing.T) {
	path := writeConfig(t, "")
	root := filepath.Dir(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	wantJournal := filepath.Join(root, "data", "journal", "conversation.json")
	if cfg.JournalPath != wantJournal {
		t.Fatalf("journal_path=%q, want %q", cfg.JournalPath, wantJournal)
	}
	wantPersona := filepath.Join(root, "persona.yaml")
	if cfg.PersonaPath != wantPersona {
		t.Fatalf("persona_path=%q, want %q", cfg.PersonaPath, wantPersona)
	}
}

func TestLoadConfigAPIKeyFromEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("VEDGE_ENGINE_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Engine.APIKey != "env-key" {
		t.Fatalf("api_key=%q, want env-key", cfg.Engine.APIKey)
	}
}
