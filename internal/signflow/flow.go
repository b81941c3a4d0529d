package signflow

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"sponsorlink/internal/signature"
	"sponsorlink/internal/signing"
)

// Steps of the signing workflow, strictly linear. Only backward transitions
// are allowed besides the forward path, so a failed or rejected step can be
// retried from where it stopped.
type Step int

const (
	StepSelect Step = iota
	StepPreview
	StepSign
	StepReview
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepPreview:
		return "preview"
	case StepSign:
		return "sign"
	case StepReview:
		return "review"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrBadTransition = errors.New("signflow: transition not allowed")
	ErrNotComplete   = errors.New("signflow: artifact not finalized yet")
)

// Flow tracks one signing session from document selection to the finished
// artifact. Download and Share are independent exit actions of the terminal
// step; neither is required and both may happen.
type Flow struct {
	mu         sync.Mutex
	step       Step
	doc        signing.Document
	raster     image.Image
	artifact   *signing.Artifact
	downloaded bool
	shared     bool
}

func New() *Flow {
	return &Flow{step: StepSelect}
}

func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// SelectDocument moves select -> preview with the chosen original.
func (f *Flow) SelectDocument(doc signing.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepSelect {
		return fmt.Errorf("%w: select from %s", ErrBadTransition, f.step)
	}
	f.doc = doc
	f.step = StepPreview
	return nil
}

// ConfirmPreview moves preview -> sign.
func (f *Flow) ConfirmPreview() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepPreview {
		return fmt.Errorf("%w: confirm preview from %s", ErrBadTransition, f.step)
	}
	f.step = StepSign
	return nil
}

// AttachSignature moves sign -> review. A blank raster is rejected and the
// flow stays at the sign step for another attempt.
func (f *Flow) AttachSignature(img image.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepSign {
		return fmt.Errorf("%w: attach signature from %s", ErrBadTransition, f.step)
	}
	if img == nil || signature.InkBounds(img).Empty() {
		return signature.ErrEmpty
	}
	f.raster = img
	f.step = StepReview
	return nil
}

// Finalize moves review -> complete with the produced artifact.
func (f *Flow) Finalize(artifact *signing.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepReview {
		return fmt.Errorf("%w: finalize from %s", ErrBadTransition, f.step)
	}
	if artifact == nil {
		return fmt.Errorf("%w: finalize without artifact", ErrBadTransition)
	}
	f.artifact = artifact
	f.step = StepComplete
	return nil
}

// Back steps one stage backward, e.g. review -> sign to redo the mark. The
// first and the terminal step have no backward transition.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.step {
	case StepPreview:
		f.step = StepSelect
		f.doc = signing.Document{}
	case StepSign:
		f.step = StepPreview
	case StepReview:
		f.step = StepSign
		f.raster = nil
	default:
		return fmt.Errorf("%w: back from %s", ErrBadTransition, f.step)
	}
	return nil
}

// MarkDownloaded records the local-download exit action.
func (f *Flow) MarkDownloaded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepComplete {
		return ErrNotComplete
	}
	f.downloaded = true
	return nil
}

// MarkShared records the upload-and-post exit action.
func (f *Flow) MarkShared() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepComplete {
		return ErrNotComplete
	}
	f.shared = true
	return nil
}

// Reset ends the signing session and discards the document reference, the
// raster and the artifact.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = StepSelect
	f.doc = signing.Document{}
	f.raster = nil
	f.artifact = nil
	f.downloaded = false
	f.shared = false
}

func (f *Flow) Document() signing.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

func (f *Flow) Raster() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raster
}

func (f *Flow) Artifact() *signing.Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifact
}

func (f *Flow) Downloaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloaded
}

func (f *Flow) Shared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shared
}
