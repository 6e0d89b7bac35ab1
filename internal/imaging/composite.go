package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Composite layers a foreground (PNG with alpha, typically the output of
// background removal) over a freshly generated background. The background
// is scaled to the foreground's dimensions before compositing, so the
// result always has the foreground's original pixel size. Both arguments
// and the result are base64-encoded; the result is PNG.
func Composite(foregroundB64, backgroundB64 string) (string, error) {
	fgRaw, err := decode(foregroundB64)
	if err != nil {
		return "", fmt.Errorf("foreground: %w", err)
	}
	bgRaw, err := decode(backgroundB64)
	if err != nil {
		return "", fmt.Errorf("background: %w", err)
	}

	fg, _, err := image.Decode(bytes.NewReader(fgRaw))
	if err != nil {
		return "", fmt.Errorf("decode foreground: %w", err)
	}
	bg, _, err := image.Decode(bytes.NewReader(bgRaw))
	if err != nil {
		return "", fmt.Errorf("decode background: %w", err)
	}

	bounds := fg.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// Scale background to the foreground's size, then lay the cut-out on top.
	xdraw.CatmullRom.Scale(out, out.Bounds(), bg, bg.Bounds(), xdraw.Src, nil)
	draw.Draw(out, out.Bounds(), fg, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return "", fmt.Errorf("encode composite: %w", err)
	}
	return encode(buf.Bytes()), nil
}
