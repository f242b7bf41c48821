package config

import (
	"fmt"
	"image"
	"os"

	// Texture decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadTexture decodes the configured texture image. It returns nil when no
// texture is set.
func (c *Config) LoadTexture() (image.Image, error) {
	if c.Source.Texture == "" {
		return nil, nil
	}
	f, err := os.Open(c.Source.Texture)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", c.Source.Texture, err)
	}
	return img, nil
}
