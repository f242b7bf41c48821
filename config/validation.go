package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config validation failed")

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Source.Width <= 0 {
		errs = append(errs, "source.width must be positive")
	}
	if c.Source.Height <= 0 {
		errs = append(errs, "source.height must be positive")
	}
	if c.Source.Width > format.MaxDimension || c.Source.Height > format.MaxDimension {
		errs = append(errs, "source dimensions exceed the maximum")
	}
	if _, err := format.ParseFraction(c.Source.FrameRate); err != nil {
		errs = append(errs, fmt.Sprintf("source.frame_rate %q must be num/den with den > 0", c.Source.FrameRate))
	}
	switch strings.ToLower(c.Source.Variant) {
	case VariantTest, VariantGL:
	default:
		errs = append(errs, fmt.Sprintf("source.variant must be %q or %q, got %q", VariantTest, VariantGL, c.Source.Variant))
	}
	switch strings.ToLower(c.Source.Output) {
	case OutputReadback, OutputSurface:
	default:
		errs = append(errs, fmt.Sprintf("source.output must be %q or %q, got %q", OutputReadback, OutputSurface, c.Source.Output))
	}

	if c.Pacer.MaxDelay < 0 {
		errs = append(errs, "pacer.max_delay must not be negative")
	}

	if c.Negotiation.RowAlign <= 0 || c.Negotiation.RowAlign&(c.Negotiation.RowAlign-1) != 0 {
		errs = append(errs, fmt.Sprintf("negotiation.row_align must be a positive power of two, got %d", c.Negotiation.RowAlign))
	}

	if c.Worker.SwapChainDepth < 2 {
		errs = append(errs, fmt.Sprintf("worker.swap_chain_depth must be at least 2, got %d", c.Worker.SwapChainDepth))
	}
	if c.Worker.MaxSurfaces < 0 {
		errs = append(errs, "worker.max_surfaces must not be negative")
	}
	if c.Worker.MaxSurfaces > 0 && c.Worker.MaxSurfaces < c.Worker.SwapChainDepth {
		errs = append(errs, fmt.Sprintf("worker.max_surfaces (%d) must cover worker.swap_chain_depth (%d)",
			c.Worker.MaxSurfaces, c.Worker.SwapChainDepth))
	}
	if c.Worker.StartupTimeout < 0 {
		errs = append(errs, "worker.startup_timeout must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a log level", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Sprintf("logging.format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
