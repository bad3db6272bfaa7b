// Package config loads the application configuration from defaults, an optional
// YAML file and PARTICLES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Renderer kinds.
const (
	RendererTerminal  = "terminal"
	RendererWindow    = "window"
	RendererWebsocket = "websocket"
	RendererNone      = "none"
)

// Config holds every configurable parameter of the application.
type Config struct {
	Canvas    CanvasConfig    `mapstructure:"canvas" yaml:"canvas"`
	Particles ParticlesConfig `mapstructure:"particles" yaml:"particles"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Renderer  RendererConfig  `mapstructure:"renderer" yaml:"renderer"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Face      FaceConfig      `mapstructure:"face" yaml:"face"`
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// CanvasConfig is the size of the drawing surface in canvas units.
type CanvasConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ParticlesConfig controls sampling.
type ParticlesConfig struct {
	Radius      float64 `mapstructure:"radius" yaml:"radius"`
	TargetCount int     `mapstructure:"target_count" yaml:"target_count"` // 0 = every opaque pixel
	Seed        int64   `mapstructure:"seed" yaml:"seed"`                 // 0 = time based
}

// LoopConfig controls the frame loop.
type LoopConfig struct {
	FPS int `mapstructure:"fps" yaml:"fps"`
}

// RendererConfig selects the drawing surface.
type RendererConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
}

// ServerConfig configures the websocket renderer.
type ServerConfig struct {
	Address      string  `mapstructure:"address" yaml:"address"`
	Prefix       string  `mapstructure:"prefix" yaml:"prefix"`
	Root         string  `mapstructure:"root" yaml:"root"`
	PointerRate  float64 `mapstructure:"pointer_rate" yaml:"pointer_rate"` // pointer messages per second per client
	PointerBurst int     `mapstructure:"pointer_burst" yaml:"pointer_burst"`
}

// FaceConfig enables the face steered pointer.
type FaceConfig struct {
	Cascade  string        `mapstructure:"cascade" yaml:"cascade"`
	Puploc   string        `mapstructure:"puploc" yaml:"puploc"`
	Frames   string        `mapstructure:"frames" yaml:"frames"` // directory of frames to replay
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Enabled reports whether face tracking should run.
func (f FaceConfig) Enabled() bool {
	return f.Cascade != "" && f.Frames != ""
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // console or json
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	File        string `mapstructure:"file" yaml:"file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// TelemetryConfig configures frame statistics output.
type TelemetryConfig struct {
	CSV     string `mapstructure:"csv" yaml:"csv"`
	Summary bool   `mapstructure:"summary" yaml:"summary"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("canvas.width", 200)
	v.SetDefault("canvas.height", 200)

	v.SetDefault("particles.radius", 2.0)
	v.SetDefault("particles.target_count", 0)
	v.SetDefault("particles.seed", 0)

	v.SetDefault("loop.fps", 60)

	v.SetDefault("renderer.kind", RendererTerminal)

	v.SetDefault("server.address", "localhost:5000")
	v.SetDefault("server.prefix", "/")
	v.SetDefault("server.root", "web")
	v.SetDefault("server.pointer_rate", 120.0)
	v.SetDefault("server.pointer_burst", 16)

	v.SetDefault("face.interval", 66*time.Millisecond)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "pixel-particles")
	v.SetDefault("logger.file", "debug.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)

	v.SetDefault("telemetry.summary", true)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("PARTICLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An empty path looks for ./config.yaml and falls
// back to defaults when it does not exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return cfg
}

// Validate checks that the configuration can drive a simulation.
func (c *Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("%w: canvas size must be positive, got %dx%d", ErrInvalid, c.Canvas.Width, c.Canvas.Height)
	}
	if c.Particles.Radius <= 0 {
		return fmt.Errorf("%w: particles.radius must be positive", ErrInvalid)
	}
	if c.Particles.TargetCount < 0 {
		return fmt.Errorf("%w: particles.target_count must not be negative", ErrInvalid)
	}
	if c.Loop.FPS <= 0 {
		return fmt.Errorf("%w: loop.fps must be positive", ErrInvalid)
	}
	switch c.Renderer.Kind {
	case RendererTerminal, RendererWindow, RendererWebsocket, RendererNone:
	default:
		return fmt.Errorf("%w: unknown renderer.kind %q", ErrInvalid, c.Renderer.Kind)
	}
	if c.Renderer.Kind == RendererWebsocket && c.Server.Address == "" {
		return fmt.Errorf("%w: server.address is required by the websocket renderer", ErrInvalid)
	}
	if c.Server.PointerRate <= 0 || c.Server.PointerBurst <= 0 {
		return fmt.Errorf("%w: server.pointer_rate and server.pointer_burst must be positive", ErrInvalid)
	}
	if c.Face.Enabled() && c.Face.Interval <= 0 {
		return fmt.Errorf("%w: face.interval must be positive", ErrInvalid)
	}
	return nil
}

// WriteYAML saves the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
