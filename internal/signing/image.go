package signing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"sponsorlink/internal/signature"
)

const (
	backingPadding = 6
	stampGap       = 14
)

// signImage composites the signature onto a copy of the original raster.
// The canvas matches the source dimensions exactly; only the signature box
// and the stamp are new pixels.
func signImage(original []byte, sig image.Image, opts Options, stamp string) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, "", fmt.Errorf("signing: decode original image: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	scaled := scaleSignature(sig, int(opts.Width), int(opts.Height))
	ink := signature.InkBounds(scaled)
	if ink.Empty() {
		return nil, "", ErrEmptySignature
	}

	sigW, sigH := scaled.Bounds().Dx(), scaled.Bounds().Dy()
	margin := int(opts.Margin)
	origin := image.Pt(
		bounds.Max.X-margin-sigW,
		bounds.Max.Y-margin-sigH-stampGap,
	)
	if origin.X < bounds.Min.X {
		origin.X = bounds.Min.X
	}
	if origin.Y < bounds.Min.Y {
		origin.Y = bounds.Min.Y
	}

	// A translucent white backing keeps the mark legible on busy photos.
	backing := ink.Add(origin).Inset(-backingPadding)
	backing = backing.Intersect(bounds)
	draw.Draw(canvas, backing, image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 200}),
		image.Point{}, draw.Over)

	draw.Draw(canvas, scaled.Bounds().Add(origin), scaled, scaled.Bounds().Min, draw.Over)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 64, G: 64, B: 64, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(origin.X, origin.Y+sigH+stampGap-2),
	}
	drawer.DrawString(stamp)

	var buf bytes.Buffer
	ext := "jpg"
	if format == "png" {
		ext = "png"
		if err := png.Encode(&buf, canvas); err != nil {
			return nil, "", fmt.Errorf("signing: encode png: %w", err)
		}
	} else {
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
			return nil, "", fmt.Errorf("signing: encode jpeg: %w", err)
		}
	}
	return buf.Bytes(), ext, nil
}

// scaleSignature fits the raster into a w x h box preserving nothing but
// the configured footprint; pads draw at a fixed aspect already.
func scaleSignature(sig image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(out, out.Bounds(), sig, sig.Bounds(), xdraw.Over, nil)
	return out
}
