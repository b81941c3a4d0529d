package signflow

import (
	"errors"
	"image"
	"testing"

	"sponsorlink/internal/signature"
	"sponsorlink/internal/signing"
)

func inkRaster(t *testing.T) image.Image {
	t.Helper()
	pad := signature.NewPad(100, 40)
	pad.Begin(10, 10)
	pad.Extend(80, 30)
	pad.End()
	img, err := pad.Raster()
	if err != nil {
		t.Fatalf("raster: %v", err)
	}
	return img
}

func TestForwardPath(t *testing.T) {
	f := New()
	doc := signing.Document{ID: "a1", Name: "contract.pdf", URL: "http://x/contract.pdf", Type: signing.DocPDF}

	if err := f.SelectDocument(doc); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.ConfirmPreview(); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if err := f.AttachSignature(inkRaster(t)); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := f.Finalize(&signing.Artifact{Data: []byte("pdf"), FileName: "contract_signed_1.pdf"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if f.Step() != StepComplete {
		t.Fatalf("step = %s", f.Step())
	}
}

func TestSkippingStepsIsRejected(t *testing.T) {
	f := New()
	if err := f.ConfirmPreview(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
	if err := f.AttachSignature(inkRaster(t)); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
	if err := f.Finalize(&signing.Artifact{}); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
}

func TestBlankSignatureKeepsFlowAtSignStep(t *testing.T) {
	f := New()
	_ = f.SelectDocument(signing.Document{Name: "x.png"})
	_ = f.ConfirmPreview()

	blank := image.NewRGBA(image.Rect(0, 0, 100, 40))
	if err := f.AttachSignature(blank); err != signature.ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if f.Step() != StepSign {
		t.Fatalf("flow advanced past the failing step: %s", f.Step())
	}
	// Retry from the same point succeeds.
	if err := f.AttachSignature(inkRaster(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestBackwardTransitions(t *testing.T) {
	f := New()
	_ = f.SelectDocument(signing.Document{Name: "x.png"})
	_ = f.ConfirmPreview()
	_ = f.AttachSignature(inkRaster(t))

	if err := f.Back(); err != nil { // review -> sign, redo the mark
		t.Fatalf("back: %v", err)
	}
	if f.Step() != StepSign {
		t.Fatalf("step = %s", f.Step())
	}
	if f.Raster() != nil {
		t.Fatal("redo must discard the previous raster")
	}
	if err := f.Back(); err != nil || f.Step() != StepPreview {
		t.Fatalf("back to preview failed: %v %s", err, f.Step())
	}
	if err := f.Back(); err != nil || f.Step() != StepSelect {
		t.Fatalf("back to select failed: %v %s", err, f.Step())
	}
	if err := f.Back(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected no backward transition from select, got %v", err)
	}
}

func TestCompleteExitActionsAreIndependent(t *testing.T) {
	f := New()
	_ = f.SelectDocument(signing.Document{Name: "x.pdf"})
	_ = f.ConfirmPreview()
	_ = f.AttachSignature(inkRaster(t))
	_ = f.Finalize(&signing.Artifact{Data: []byte("pdf")})

	if err := f.MarkDownloaded(); err != nil {
		t.Fatalf("download: %v", err)
	}
	if err := f.MarkShared(); err != nil {
		t.Fatalf("share: %v", err)
	}
	if !f.Downloaded() || !f.Shared() {
		t.Fatal("both exit actions should be recorded")
	}
}

func TestExitActionsRequireComplete(t *testing.T) {
	f := New()
	if err := f.MarkDownloaded(); err != ErrNotComplete {
		t.Fatalf("expected ErrNotComplete, got %v", err)
	}
}

func TestResetEndsSession(t *testing.T) {
	f := New()
	_ = f.SelectDocument(signing.Document{Name: "x.pdf"})
	_ = f.ConfirmPreview()
	_ = f.AttachSignature(inkRaster(t))
	_ = f.Finalize(&signing.Artifact{Data: []byte("pdf")})
	f.Reset()

	if f.Step() != StepSelect || f.Artifact() != nil || f.Document().Name != "" {
		t.Fatal("reset must drop all session state")
	}
}
