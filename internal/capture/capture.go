// Package capture produces the screenshot pixels the scan loop consumes:
// a full-page browser capture or a PNG loaded from disk, plus the tile
// cropper that encodes individual row bands back to PNG.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"darksight/internal/logging"
)

// Source is a decoded screenshot ready for tiling.
type Source struct {
	img image.Image
}

// FromPNG decodes an in-memory PNG.
func FromPNG(data []byte) (*Source, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return &Source{img: img}, nil
}

// FromFile loads an already-captured screenshot from disk.
func FromFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %w", err)
	}
	src, err := FromPNG(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Capture("loaded %s: %dx%d", path, src.Width(), src.Height())
	return src, nil
}

// Width returns the image width in pixels.
func (s *Source) Width() int { return s.img.Bounds().Dx() }

// Height returns the image height in pixels.
func (s *Source) Height() int { return s.img.Bounds().Dy() }

// RenderTile encodes the pixel rows [offset, offset+height) as PNG. The
// signature matches what the scan loop injects per tile.
func (s *Source) RenderTile(offset, height int) ([]byte, error) {
	b := s.img.Bounds()
	if offset < 0 || height <= 0 || offset+height > b.Dy() {
		return nil, fmt.Errorf("tile rows [%d,%d) outside image height %d", offset, offset+height, b.Dy())
	}

	rect := image.Rect(b.Min.X, b.Min.Y+offset, b.Max.X, b.Min.Y+offset+height)
	tile := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(tile, tile.Bounds(), s.img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}
	logging.CaptureDebug("rendered tile rows [%d,%d): %d bytes", offset, offset+height, buf.Len())
	return buf.Bytes(), nil
}

// CapturePage takes a full-page screenshot of url in a headless browser.
func CapturePage(ctx context.Context, url string) (*Source, error) {
	logging.Capture("capturing %s", url)

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page did not finish loading: %w", err)
	}

	data, err := page.Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	src, err := FromPNG(data)
	if err != nil {
		return nil, err
	}
	logging.Capture("captured %s: %dx%d", url, src.Width(), src.Height())
	return src, nil
}
