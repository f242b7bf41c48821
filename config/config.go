// Package config loads framegen stream settings from an optional file and
// FRAMEGEN_ environment variables.
package config

import (
	"time"

	"github.com/opd-ai/framegen/format"
)

// Source variants.
const (
	VariantTest = "test"
	VariantGL   = "gl"
)

// Output modes of the GPU source.
const (
	OutputReadback = "readback"
	OutputSurface  = "surface"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the full set of stream settings.
type Config struct {
	Source      SourceConfig      `mapstructure:"source" yaml:"source" toml:"source"`
	Pacer       PacerConfig       `mapstructure:"pacer" yaml:"pacer" toml:"pacer"`
	Negotiation NegotiationConfig `mapstructure:"negotiation" yaml:"negotiation" toml:"negotiation"`
	Worker      WorkerConfig      `mapstructure:"worker" yaml:"worker" toml:"worker"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging" toml:"logging"`
}

// SourceConfig selects the source and its output format.
type SourceConfig struct {
	Width  int `mapstructure:"width" yaml:"width" toml:"width"`
	Height int `mapstructure:"height" yaml:"height" toml:"height"`
	// FrameRate is "num/den" or a bare integer.
	FrameRate string `mapstructure:"frame_rate" yaml:"frame_rate" toml:"frame_rate"`
	// Output is "readback" or "surface"; only the GPU source uses it.
	Output string `mapstructure:"output" yaml:"output" toml:"output"`
	// Variant is "test" for the CPU source or "gl" for the GPU source.
	Variant string `mapstructure:"variant" yaml:"variant" toml:"variant"`
	// Texture is an optional image path drawn by the GPU source.
	Texture string `mapstructure:"texture" yaml:"texture" toml:"texture"`
}

// PacerConfig tunes frame pacing.
type PacerConfig struct {
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" toml:"max_delay"`
}

// NegotiationConfig tunes caps negotiation of the transform stage.
type NegotiationConfig struct {
	Strict   bool `mapstructure:"strict" yaml:"strict" toml:"strict"`
	RowAlign int  `mapstructure:"row_align" yaml:"row_align" toml:"row_align"`
}

// WorkerConfig tunes the GPU render worker.
type WorkerConfig struct {
	SwapChainDepth int           `mapstructure:"swap_chain_depth" yaml:"swap_chain_depth" toml:"swap_chain_depth"`
	MaxSurfaces    int           `mapstructure:"max_surfaces" yaml:"max_surfaces" toml:"max_surfaces"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout" toml:"startup_timeout"`
}

// LoggingConfig sets the logrus level and formatter.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" toml:"level"`
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
}

// Default returns the built-in settings: a 512x512 BGRx test source at 30/1.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Width:     512,
			Height:    512,
			FrameRate: "30/1",
			Output:    OutputReadback,
			Variant:   VariantTest,
		},
		Pacer: PacerConfig{
			MaxDelay: time.Second,
		},
		Negotiation: NegotiationConfig{
			Strict:   false,
			RowAlign: format.DefaultRowAlign,
		},
		Worker: WorkerConfig{
			SwapChainDepth: 2,
			MaxSurfaces:    0,
			StartupTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

// Descriptor returns the source output format.
func (c *Config) Descriptor() (format.Descriptor, error) {
	rate, err := format.ParseFraction(c.Source.FrameRate)
	if err != nil {
		return format.Descriptor{}, err
	}
	return format.Descriptor{
		Format:    format.PixelFormatBGRx,
		Width:     c.Source.Width,
		Height:    c.Source.Height,
		FrameRate: rate,
	}, nil
}
