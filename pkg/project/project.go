// Package project provides loading and validation of project files.
package project

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Project describes a complete editing project: the output canvas, the
// imported sources and the clip arrangement.
type Project struct {
	Name   string       `yaml:"name"`
	Canvas CanvasConfig `yaml:"canvas"`

	Sources []SourceConfig `yaml:"sources"`
	Clips   []ClipConfig   `yaml:"clips"`

	Export ExportConfig `yaml:"export"`

	// Debug
	LogLevel string `yaml:"log_level"`
}

// CanvasConfig is the output geometry and frame rate.
type CanvasConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// SourceConfig describes one imported media asset.
type SourceConfig struct {
	ID             string  `yaml:"id"`
	Kind           string  `yaml:"kind"` // video, audio, image, text, subtitle, test
	Path           string  `yaml:"path"`
	FrameRate      float64 `yaml:"frame_rate"`
	DurationFrames int64   `yaml:"duration_frames"`
}

// ClipConfig places a source on the timeline.
type ClipConfig struct {
	Source       string  `yaml:"source"`
	Track        int     `yaml:"track"`
	Start        int64   `yaml:"start"`
	Duration     int64   `yaml:"duration"`
	SourceOffset int64   `yaml:"source_offset"`
	X            float64 `yaml:"x"`
	Y            float64 `yaml:"y"`
	Scale        float64 `yaml:"scale"`
	Rotation     float64 `yaml:"rotation"`
	Opacity      float64 `yaml:"opacity"`
	Text         string  `yaml:"text"`
	Color        string  `yaml:"color"`
	FontSize     float64 `yaml:"font_size"`
}

// ExportConfig is the export range and destination.
type ExportConfig struct {
	Output     string `yaml:"output"`
	StartFrame int64  `yaml:"start_frame"`
	EndFrame   int64  `yaml:"end_frame"` // 0 means the end of the last clip
	Quality    int    `yaml:"quality"`
}

// Defaults returns a Project with default values.
func Defaults() Project {
	return Project{
		Canvas: CanvasConfig{
			Width:  1280,
			Height: 720,
			FPS:    30,
		},
		Export: ExportConfig{
			Output:  "./export.mp4",
			Quality: 85,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads a project from a YAML file.
func LoadFromFile(path string) (Project, error) {
	p := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks cross-references and ranges.
func (p *Project) Validate() error {
	if p.Canvas.Width <= 0 || p.Canvas.Height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", p.Canvas.Width, p.Canvas.Height)
	}
	if p.Canvas.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %f", p.Canvas.FPS)
	}

	ids := make(map[string]bool)
	for _, s := range p.Sources {
		if s.ID == "" {
			return fmt.Errorf("source without id")
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		ids[s.ID] = true
	}
	for i, c := range p.Clips {
		if !ids[c.Source] {
			return fmt.Errorf("clip %d references unknown source %q", i, c.Source)
		}
		if c.Start < 0 {
			return fmt.Errorf("clip %d starts before the timeline", i)
		}
		if c.Duration < 0 {
			return fmt.Errorf("clip %d has negative duration", i)
		}
	}
	if p.Export.EndFrame != 0 && p.Export.EndFrame <= p.Export.StartFrame {
		return fmt.Errorf("empty export range [%d, %d)", p.Export.StartFrame, p.Export.EndFrame)
	}
	return nil
}
