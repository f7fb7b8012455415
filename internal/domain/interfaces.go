package domain

import "context"

// Generator defines the interface to the generative content service. The
// pipeline calls it for everything that requires a model: plan text from a
// document, slide imagery, and transition video between two slide images.
// These calls are the pipeline's only suspension points.
type Generator interface {
	// GeneratePlan sends the document bytes and the user's free-text style
	// prompt and returns the raw model text. The prompt is passed through
	// verbatim, never validated.
	GeneratePlan(ctx context.Context, pdf []byte, prompt string) (string, error)

	// GenerateImage renders one slide image from a prompt. reference, when
	// non-nil, is a previously rendered slide passed along for style
	// continuity.
	GenerateImage(ctx context.Context, prompt string, reference []byte) ([]byte, error)

	// GenerateVideo produces a transition video interpolating between the
	// first and last frame images.
	GenerateVideo(ctx context.Context, prompt string, first, last []byte) ([]byte, error)
}

// Inspector defines the interface for examining the source document before
// any stage runs: identity derivation and basic structural validation.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*Document, error)
}
