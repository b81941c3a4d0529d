package signing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"sponsorlink/internal/signature"
)

// Document type discriminators as reported by the attachment query.
const (
	DocImage = "image"
	DocPDF   = "document"
)

var (
	ErrEmptySignature = errors.New("signing: signature has no ink")
	ErrNoSource       = errors.New("signing: document url required")
)

// Document references the original content to sign. The original is never
// mutated; signing always produces a new artifact.
type Document struct {
	ID   string
	Name string
	URL  string
	Type string
	Size int64
}

// Options tunes placement of the signature box. Zero values select the
// defaults: last page, 120x40 units, 24 unit margin, JPEG quality 90.
type Options struct {
	Page         int // 1-based; 0 means last page
	Width        float64
	Height       float64
	Margin       float64
	JPEGQuality  int
	FetchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 120
	}
	if o.Height <= 0 {
		o.Height = 40
	}
	if o.Margin <= 0 {
		o.Margin = 24
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = 90
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	return o
}

// Artifact is the signed output: a complete new binary plus the filename it
// should be stored or uploaded under.
type Artifact struct {
	Data     []byte
	FileName string
	Mime     string
}

// Signer composites a signature raster onto PDF and image documents.
type Signer struct {
	client *http.Client
	now    func() time.Time
}

// NewSigner builds a signer around the given HTTP client; nil selects
// http.DefaultClient.
func NewSigner(client *http.Client) *Signer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Signer{client: client, now: time.Now}
}

// Sign fetches the original document and returns a new artifact with the
// signature and a dated stamp composited at the configured position. The
// operation is atomic from the caller's perspective: any fetch, parse or
// decode failure aborts with an error and no partial output.
func (s *Signer) Sign(ctx context.Context, doc Document, sig image.Image, opts Options) (*Artifact, error) {
	if sig == nil || signature.InkBounds(sig).Empty() {
		return nil, ErrEmptySignature
	}
	if doc.URL == "" {
		return nil, ErrNoSource
	}
	opts = opts.withDefaults()

	original, err := s.fetch(ctx, doc.URL, opts.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("signing: fetch %q: %w", doc.Name, err)
	}

	stamp := "Signed: " + s.now().Format("2006-01-02")
	if isRaster(doc) {
		data, ext, err := signImage(original, sig, opts, stamp)
		if err != nil {
			return nil, err
		}
		return &Artifact{
			Data:     data,
			FileName: signedFileName(doc.Name, ext, s.now()),
			Mime:     mimeForExt(ext),
		}, nil
	}

	data, err := signPDF(original, sig, opts, stamp)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Data:     data,
		FileName: signedFileName(doc.Name, "pdf", s.now()),
		Mime:     "application/pdf",
	}, nil
}

func (s *Signer) fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// isRaster dispatches by declared type first, falling back to the filename
// extension for untyped attachments.
func isRaster(doc Document) bool {
	if doc.Type == DocImage {
		return true
	}
	if doc.Type == DocPDF {
		return false
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(doc.Name), ".")) {
	case "png", "jpg", "jpeg", "gif", "webp":
		return true
	}
	return false
}

// signedFileName derives <base>_signed_<unix-ts>.<ext>, unique per signing
// operation without server coordination.
func signedFileName(original, ext string, now time.Time) string {
	base := strings.TrimSuffix(path.Base(original), path.Ext(original))
	if base == "" {
		base = "document"
	}
	return fmt.Sprintf("%s_signed_%d.%s", base, now.Unix(), ext)
}

func mimeForExt(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
