package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
)

var (
	ErrEmpty      = errors.New("signature: no strokes drawn")
	ErrBadDataURL = errors.New("signature: malformed data url")
)

const inkRadius = 2

// Point is a pad-local coordinate of a stroke sample.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pad captures freehand strokes. It is the only stateful stage of the
// signing pipeline: once Raster is called the result is an immutable image
// and the pad can be cleared or discarded.
type Pad struct {
	mu      sync.Mutex
	w, h    int
	strokes [][]Point
	active  []Point
}

func NewPad(width, height int) *Pad {
	if width <= 0 {
		width = 400
	}
	if height <= 0 {
		height = 150
	}
	return &Pad{w: width, h: height}
}

// Begin starts a new stroke at the given point.
func (p *Pad) Begin(x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = []Point{{X: x, Y: y}}
}

// Extend continues the active stroke. Without a preceding Begin it starts
// one, matching how drag events arrive in practice.
func (p *Pad) Extend(x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append(p.active, Point{X: x, Y: y})
}

// End finishes the active stroke and commits it.
func (p *Pad) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) > 0 {
		p.strokes = append(p.strokes, p.active)
		p.active = nil
	}
}

// Clear drops all strokes, returning the pad to its untouched state.
func (p *Pad) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strokes = nil
	p.active = nil
}

// IsEmpty reports whether nothing has been drawn yet. An untouched pad must
// be rejected before it ever reaches the compositing step.
func (p *Pad) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.strokes) == 0 && len(p.active) == 0
}

// Raster freezes the current strokes into an RGBA image with transparent
// background and black ink.
func (p *Pad) Raster() (*image.RGBA, error) {
	p.mu.Lock()
	strokes := make([][]Point, len(p.strokes))
	copy(strokes, p.strokes)
	if len(p.active) > 0 {
		strokes = append(strokes, p.active)
	}
	w, h := p.w, p.h
	p.mu.Unlock()

	if len(strokes) == 0 {
		return nil, ErrEmpty
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	ink := color.RGBA{A: 255}
	for _, stroke := range strokes {
		if len(stroke) == 1 {
			drawDisc(img, stroke[0].X, stroke[0].Y, inkRadius, ink)
			continue
		}
		for i := 1; i < len(stroke); i++ {
			drawSegment(img, stroke[i-1], stroke[i], ink)
		}
	}
	return img, nil
}

func drawSegment(img *image.RGBA, from, to Point, ink color.RGBA) {
	dx, dy := to.X-from.X, to.Y-from.Y
	steps := abs(dx)
	if abs(dy) > steps {
		steps = abs(dy)
	}
	if steps == 0 {
		drawDisc(img, from.X, from.Y, inkRadius, ink)
		return
	}
	for i := 0; i <= steps; i++ {
		x := from.X + dx*i/steps
		y := from.Y + dy*i/steps
		drawDisc(img, x, y, inkRadius, ink)
	}
}

func drawDisc(img *image.RGBA, cx, cy, r int, ink color.RGBA) {
	bounds := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				img.SetRGBA(x, y, ink)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// InkBounds returns the bounding box of non-transparent pixels, or the zero
// rectangle when the image carries no ink.
func InkBounds(img image.Image) image.Rectangle {
	bounds := img.Bounds()
	box := image.Rectangle{}
	found := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			pt := image.Rect(x, y, x+1, y+1)
			if !found {
				box = pt
				found = true
			} else {
				box = box.Union(pt)
			}
		}
	}
	return box
}

// EncodeDataURL serializes the raster as a PNG data URL, the interchange
// form used to hand a saved signature across component boundaries.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL reverses EncodeDataURL.
func DecodeDataURL(s string) (image.Image, error) {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(s, prefix) {
		return nil, ErrBadDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, prefix))
	if err != nil {
		return nil, fmt.Errorf("signature: decode data url: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("signature: decode png: %w", err)
	}
	return img, nil
}
