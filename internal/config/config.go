package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the export settings. Each operation receives it explicitly.
type Config struct {
	// Feature switches, named after the host pipeline flags.
	SaveToPPTX       bool `yaml:"save_to_pptx"`
	AntiDuplication  bool `yaml:"anti_dupli_pptx"`
	JoinScenes       bool `yaml:"join_scenes_pptx"`
	Preview          bool `yaml:"preview"`
	ShowFileInFinder bool `yaml:"show_file_in_finder"`

	// Layout
	MovieRoot string `yaml:"movie_root"`
	MediaDir  string `yaml:"media_dir"`
	TempDir   string `yaml:"temp_dir"`
	LogFile   string `yaml:"log_file"`

	// Templates. Empty means the bundled ones.
	Template      string `yaml:"template"`
	TimingExample string `yaml:"timing_example"`

	// Tools
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	Workers           int  `yaml:"workers"`
	ThumbnailMaxWidth int  `yaml:"thumbnail_max_width"`
	Report            bool `yaml:"report"`
	Verbose           bool `yaml:"verbose"`

	BuildVersion string `yaml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	tmp := filepath.Join(os.TempDir(), "scenes2pptx")
	return &Config{
		MediaDir:    "media",
		TempDir:     filepath.Join(tmp, "temporary"),
		LogFile:     filepath.Join(tmp, "scenes2pptx.log"),
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Workers:     1,
	}
}

// Load reads configuration from path, or from the first file found in the
// usual locations when path is empty. Missing files yield defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside an export.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.ThumbnailMaxWidth < 0 {
		return fmt.Errorf("thumbnail_max_width must be >= 0, got %d", c.ThumbnailMaxWidth)
	}
	if c.TempDir == "" {
		return errors.New("temp_dir must not be empty")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func findConfigFile() string {
	candidates := []string{"scenes2pptx.yaml", "scenes2pptx.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "scenes2pptx", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
