package signing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// signPDF embeds the signature raster on the target page (default: last)
// at bottom-right with the configured margin, then stamps the date line
// beneath it. Two watermark passes, both in memory; the caller only ever
// sees the final document or an error.
func signPDF(original []byte, sig image.Image, opts Options, stamp string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(original), conf)
	if err != nil {
		return nil, fmt.Errorf("signing: parse pdf: %w", err)
	}
	page := opts.Page
	if page <= 0 || page > pageCount {
		page = pageCount
	}
	pages := []string{strconv.Itoa(page)}

	// The raster is pre-scaled so that at scale 1 one pixel maps to one
	// point, giving the configured box size on the page.
	scaled := scaleSignature(sig, int(opts.Width), int(opts.Height))
	var sigPNG bytes.Buffer
	if err := png.Encode(&sigPNG, scaled); err != nil {
		return nil, fmt.Errorf("signing: encode signature: %w", err)
	}

	margin := int(opts.Margin)
	imgDesc := fmt.Sprintf("pos:br, off:-%d %d, scale:1 abs, rot:0", margin, margin+stampGap)
	imgWM, err := api.ImageWatermarkForReader(&sigPNG, imgDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("signing: build signature watermark: %w", err)
	}

	var withSig bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(original), &withSig, pages, imgWM, conf); err != nil {
		return nil, fmt.Errorf("signing: apply signature: %w", err)
	}

	textDesc := fmt.Sprintf("fontname:Helvetica, points:9, scale:1 abs, rot:0, fillcolor:#404040, pos:br, off:-%d %d", margin, margin)
	textWM, err := api.TextWatermark(stamp, textDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("signing: build date stamp: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(withSig.Bytes()), &out, pages, textWM, conf); err != nil {
		return nil, fmt.Errorf("signing: apply date stamp: %w", err)
	}
	return out.Bytes(), nil
}
