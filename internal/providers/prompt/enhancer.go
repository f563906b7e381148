package prompt

import "context"

// Enhancer rewrites a user's edit request into a model-ready prompt using
// the source image as context. Implementations return an error on any
// failure; callers treat that as "use the original prompt", enhancement is
// strictly best-effort.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string, image []byte) (string, error)
	Name() string
}
