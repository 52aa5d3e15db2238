// Package manifest records what went into each exported presentation.
package manifest

import (
	"fmt"
	"os"

	"github.com/ivlev/scenes2pptx/internal/video"
	"gopkg.in/yaml.v3"
)

// Version of the report layout.
const Version = "1.0"

// Report describes one written presentation
type Report struct {
	Version         string  `yaml:"version"`
	RunID           string  `yaml:"run_id"`
	Name            string  `yaml:"name"`
	Output          string  `yaml:"output"`
	Template        string  `yaml:"template"`
	Timing          string  `yaml:"timing"`
	AntiDuplication bool    `yaml:"anti_duplication"`
	Slides          []Slide `yaml:"slides"`
}

// Slide is one clip placed on a slide
type Slide struct {
	Index     int             `yaml:"index"`
	Scene     string          `yaml:"scene"`
	ShapeID   int             `yaml:"shape_id"`
	Clip      string          `yaml:"clip"`
	Parts     []string        `yaml:"parts"` // source parts, two when merged
	Thumbnail string          `yaml:"thumbnail"`
	Info      *video.ClipInfo `yaml:"info,omitempty"`
}

// PathFor returns the report path that sits next to a presentation.
func PathFor(pptxPath string) string {
	return pptxPath + ".yaml"
}

// Write writes a report to a YAML file
func Write(report *Report, path string) error {
	if report.Version == "" {
		report.Version = Version
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Read reads a report from a YAML file
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}

	return &report, nil
}
