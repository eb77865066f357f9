// Package config handles waypath configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// Config holds all settings.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Display DisplayConfig `yaml:"display"`
	Server  ServerConfig  `yaml:"server"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig holds walkability and routing settings.
type EngineConfig struct {
	Metric       walkmap.Metric `yaml:"metric"`
	Threshold    float64        `yaml:"threshold"`
	CloseLoop    bool           `yaml:"close_loop"`    // Route back from the last waypoint to the first
	DeferRebuild bool           `yaml:"defer_rebuild"` // Rebuild the grid lazily before the next read
}

// Policy returns the color policy described by the engine settings.
func (e EngineConfig) Policy() walkmap.Policy {
	return walkmap.Policy{Metric: e.Metric, Threshold: e.Threshold}
}

// DisplayConfig holds the interaction surface settings. Display height
// follows the image aspect ratio.
type DisplayConfig struct {
	Width     int `yaml:"width"`
	MaxHeight int `yaml:"max_height"` // 0 disables the limit
}

// Fit returns the display size for an image of the given size.
func (d DisplayConfig) Fit(image geom.Size) geom.Size {
	return geom.Fit(image, d.Width, d.MaxHeight)
}

// ServerConfig holds HTTP host settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxSessions    int           `yaml:"max_sessions"`
	MaxUploadMB    int           `yaml:"max_upload_mb"`
}

// RenderConfig holds overlay drawing settings. Colors are hex strings.
type RenderConfig struct {
	PathColor      string  `yaml:"path_color"`
	PathWidth      float64 `yaml:"path_width"`
	WaypointColor  string  `yaml:"waypoint_color"`
	WaypointRadius float64 `yaml:"waypoint_radius"`
	WalkableTint   string  `yaml:"walkable_tint"`
	ShowWalkable   bool    `yaml:"show_walkable"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Metric:       walkmap.MetricRGB,
			Threshold:    walkmap.DefaultRGBThreshold,
			CloseLoop:    true,
			DeferRebuild: false,
		},
		Display: DisplayConfig{
			Width:     1280,
			MaxHeight: 4096,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxSessions:    64,
			MaxUploadMB:    32,
		},
		Render: RenderConfig{
			PathColor:      "#0000ff",
			PathWidth:      2,
			WaypointColor:  "#ff0000",
			WaypointRadius: 5,
			WalkableTint:   "#00c85060",
			ShowWalkable:   false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if err := c.Engine.Policy().Validate(); err != nil {
		return err
	}
	for _, hex := range []string{c.Render.PathColor, c.Render.WaypointColor, c.Render.WalkableTint} {
		if _, err := walkmap.ParseHex(hex); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	return nil
}
