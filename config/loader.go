package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FRAMEGEN_SOURCE_WIDTH.
const EnvPrefix = "FRAMEGEN"

// DefaultConfigName is the file searched for in the working directory when
// Load is given no path.
const DefaultConfigName = "framegen"

// Load reads settings from path, or from ./framegen.{yaml,toml,json} when path
// is empty, then applies FRAMEGEN_ environment overrides and validates the
// result. A missing default file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}

	if err := readConfigFile(v, path != ""); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"file":     v.ConfigFileUsed(),
		"variant":  cfg.Source.Variant,
		"size":     fmt.Sprintf("%dx%d", cfg.Source.Width, cfg.Source.Height),
		"rate":     cfg.Source.FrameRate,
	}).Debug("Configuration loaded")
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("source.width", d.Source.Width)
	v.SetDefault("source.height", d.Source.Height)
	v.SetDefault("source.frame_rate", d.Source.FrameRate)
	v.SetDefault("source.output", d.Source.Output)
	v.SetDefault("source.variant", d.Source.Variant)
	v.SetDefault("source.texture", d.Source.Texture)

	v.SetDefault("pacer.max_delay", d.Pacer.MaxDelay)

	v.SetDefault("negotiation.strict", d.Negotiation.Strict)
	v.SetDefault("negotiation.row_align", d.Negotiation.RowAlign)

	v.SetDefault("worker.swap_chain_depth", d.Worker.SwapChainDepth)
	v.SetDefault("worker.max_surfaces", d.Worker.MaxSurfaces)
	v.SetDefault("worker.startup_timeout", d.Worker.StartupTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func readConfigFile(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !explicit && errors.As(err, &notFound) {
		logrus.WithFields(logrus.Fields{
			"function": "readConfigFile",
		}).Debug("No config file found, using defaults")
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}
