package config

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/framegen/format"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	d, err := cfg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, format.Descriptor{
		Format:    format.PixelFormatBGRx,
		Width:     512,
		Height:    512,
		FrameRate: format.Fraction{Num: 30, Den: 1},
	}, d)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	data := `
source:
  width: 640
  height: 600
  frame_rate: 30000/1001
  variant: gl
  output: surface
pacer:
  max_delay: 250ms
negotiation:
  strict: true
worker:
  swap_chain_depth: 3
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Source.Width)
	assert.Equal(t, 600, cfg.Source.Height)
	assert.Equal(t, "30000/1001", cfg.Source.FrameRate)
	assert.Equal(t, VariantGL, cfg.Source.Variant)
	assert.Equal(t, OutputSurface, cfg.Source.Output)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacer.MaxDelay)
	assert.True(t, cfg.Negotiation.Strict)
	assert.Equal(t, format.DefaultRowAlign, cfg.Negotiation.RowAlign, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Worker.SwapChainDepth)
	assert.Equal(t, 5*time.Second, cfg.Worker.StartupTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoadFindsDefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "framegen.toml"),
		[]byte("[source]\nwidth = 1024\nheight = 768\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Source.Width)
	assert.Equal(t, 768, cfg.Source.Height)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FRAMEGEN_SOURCE_WIDTH", "800")
	t.Setenv("FRAMEGEN_SOURCE_FRAME_RATE", "60/1")
	t.Setenv("FRAMEGEN_PACER_MAX_DELAY", "100ms")
	t.Setenv("FRAMEGEN_NEGOTIATION_STRICT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Source.Width)
	assert.Equal(t, "60/1", cfg.Source.FrameRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Pacer.MaxDelay)
	assert.True(t, cfg.Negotiation.Strict)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  height: 600\n"), 0o600))
	t.Setenv("FRAMEGEN_SOURCE_HEIGHT", "720")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 720, cfg.Source.Height)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  width: -1\n  frame_rate: 30/0\n"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "source.width")
	assert.Contains(t, err.Error(), "source.frame_rate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantErr    bool
		errorField string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:       "zero height",
			mutate:     func(c *Config) { c.Source.Height = 0 },
			wantErr:    true,
			errorField: "source.height",
		},
		{
			name:       "zero denominator",
			mutate:     func(c *Config) { c.Source.FrameRate = "30/0" },
			wantErr:    true,
			errorField: "source.frame_rate",
		},
		{
			name:   "variable rate",
			mutate: func(c *Config) { c.Source.FrameRate = "0/1" },
		},
		{
			name:       "unknown variant",
			mutate:     func(c *Config) { c.Source.Variant = "vulkan" },
			wantErr:    true,
			errorField: "source.variant",
		},
		{
			name:       "unknown output",
			mutate:     func(c *Config) { c.Source.Output = "texture" },
			wantErr:    true,
			errorField: "source.output",
		},
		{
			name:       "negative max delay",
			mutate:     func(c *Config) { c.Pacer.MaxDelay = -time.Second },
			wantErr:    true,
			errorField: "pacer.max_delay",
		},
		{
			name:       "row align not power of two",
			mutate:     func(c *Config) { c.Negotiation.RowAlign = 3 },
			wantErr:    true,
			errorField: "negotiation.row_align",
		},
		{
			name:       "single buffered swap chain",
			mutate:     func(c *Config) { c.Worker.SwapChainDepth = 1 },
			wantErr:    true,
			errorField: "worker.swap_chain_depth",
		},
		{
			name:       "surface limit below depth",
			mutate:     func(c *Config) { c.Worker.MaxSurfaces = 1 },
			wantErr:    true,
			errorField: "worker.max_surfaces",
		},
		{
			name:       "bad log level",
			mutate:     func(c *Config) { c.Logging.Level = "loud" },
			wantErr:    true,
			errorField: "logging.level",
		},
		{
			name:       "bad log format",
			mutate:     func(c *Config) { c.Logging.Format = "xml" },
			wantErr:    true,
			errorField: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errorField)
		})
	}
}

func TestApplyLoggingTo(t *testing.T) {
	logger := logrus.New()

	cfg := Default()
	cfg.Logging.Level = "trace"
	cfg.Logging.Format = LogFormatJSON
	require.NoError(t, cfg.ApplyLoggingTo(logger))
	assert.Equal(t, logrus.TraceLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.Logging.Level = "warn"
	cfg.Logging.Format = LogFormatText
	require.NoError(t, cfg.ApplyLoggingTo(logger))
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	cfg.Logging.Level = "loud"
	assert.ErrorIs(t, cfg.ApplyLoggingTo(logger), ErrInvalidConfig)
}

func TestLoadTexture(t *testing.T) {
	cfg := Default()
	img, err := cfg.LoadTexture()
	require.NoError(t, err)
	assert.Nil(t, img)

	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	cfg.Source.Texture = path
	img, err = cfg.LoadTexture()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	cfg.Source.Texture = filepath.Join(t.TempDir(), "missing.png")
	_, err = cfg.LoadTexture()
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
