package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes2pptx.yaml")
	data := []byte("anti_dupli_pptx: true\njoin_scenes_pptx: true\nworkers: 4\nmovie_root: /tmp/movies\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.AntiDuplication || !cfg.JoinScenes {
		t.Errorf("flags not loaded: %+v", cfg)
	}
	if cfg.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Workers)
	}
	if cfg.MovieRoot != "/tmp/movies" {
		t.Errorf("Expected movie root /tmp/movies, got %s", cfg.MovieRoot)
	}
	// untouched keys keep defaults
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %s", cfg.FFmpegPath)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"negative width", func(c *Config) { c.ThumbnailMaxWidth = -1 }, true},
		{"empty temp", func(c *Config) { c.TempDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Preview = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Preview {
		t.Error("Expected preview to survive save/load")
	}
}

func TestFromContext(t *testing.T) {
	if cfg := FromContext(context.Background()); cfg.Workers != 1 {
		t.Errorf("empty context should yield defaults, got %+v", cfg)
	}

	want := Default()
	want.JoinScenes = true
	got := FromContext(WithConfig(context.Background(), want))
	if got != want {
		t.Error("FromContext should return the stored config")
	}
}
