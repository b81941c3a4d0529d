package signature

import (
	"image"
	"testing"
)

func TestUntouchedPadIsRejected(t *testing.T) {
	pad := NewPad(400, 150)
	if !pad.IsEmpty() {
		t.Fatal("fresh pad should be empty")
	}
	if _, err := pad.Raster(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestSingleStrokeProducesInk(t *testing.T) {
	pad := NewPad(100, 50)
	pad.Begin(10, 10)
	pad.Extend(40, 20)
	pad.Extend(80, 12)
	pad.End()

	if pad.IsEmpty() {
		t.Fatal("pad with a stroke must not be empty")
	}
	img, err := pad.Raster()
	if err != nil {
		t.Fatalf("raster: %v", err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 100, 50) {
		t.Fatalf("raster bounds = %v", got)
	}
	box := InkBounds(img)
	if box.Empty() {
		t.Fatal("expected ink on the raster")
	}
	if box.Min.X > 10 || box.Max.X < 80 {
		t.Fatalf("ink box %v does not span the stroke", box)
	}
}

func TestClearReturnsToEmpty(t *testing.T) {
	pad := NewPad(100, 50)
	pad.Begin(5, 5)
	pad.End()
	pad.Clear()
	if !pad.IsEmpty() {
		t.Fatal("cleared pad should be empty")
	}
}

func TestUnfinishedStrokeStillCounts(t *testing.T) {
	pad := NewPad(100, 50)
	pad.Begin(5, 5)
	pad.Extend(20, 20)
	// no End: the mark was drawn even if the pointer never lifted
	if pad.IsEmpty() {
		t.Fatal("active stroke should count as drawn")
	}
	if _, err := pad.Raster(); err != nil {
		t.Fatalf("raster with active stroke: %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	pad := NewPad(60, 30)
	pad.Begin(10, 10)
	pad.Extend(50, 20)
	pad.End()
	img, err := pad.Raster()
	if err != nil {
		t.Fatalf("raster: %v", err)
	}

	url, err := EncodeDataURL(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("bounds changed in round trip: %v vs %v", decoded.Bounds(), img.Bounds())
	}
	if InkBounds(decoded).Empty() {
		t.Fatal("ink lost in round trip")
	}
}

func TestDecodeDataURLRejectsGarbage(t *testing.T) {
	if _, err := DecodeDataURL("not-a-data-url"); err != ErrBadDataURL {
		t.Fatalf("expected ErrBadDataURL, got %v", err)
	}
	if _, err := DecodeDataURL("data:image/png;base64,!!!"); err == nil {
		t.Fatal("expected base64 error")
	}
}
