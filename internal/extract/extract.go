// Package extract defines the external text-extraction collaborator used as
// the last resolution stage when no internal match clears its threshold.
//
// Extraction is advisory: it proposes a counterparty name with a
// confidence, and any timeout or transport failure degrades to "no
// suggestion" rather than failing the pipeline.
package extract

import (
	"context"
	"errors"
)

// ErrNoSuggestion is returned when the collaborator has nothing useful to
// propose for a description.
var ErrNoSuggestion = errors.New("no extraction suggestion")

// Suggestion is a proposed counterparty name with a confidence in [0,1].
type Suggestion struct {
	Name       string
	Confidence float64
}

// Extractor proposes an entity name for a raw transaction description.
// Implementations must respect the context deadline; callers always attach
// a timeout.
type Extractor interface {
	ExtractEntityName(ctx context.Context, description string) (Suggestion, error)
}

// CategoryClassifier picks the best fit from an owner's category names for
// a transaction description. The returned Suggestion.Name must be one of
// the given names or ErrNoSuggestion is returned.
type CategoryClassifier interface {
	ClassifyCategory(ctx context.Context, description string, categories []string) (Suggestion, error)
}

// Disabled is an Extractor and CategoryClassifier that never suggests
// anything. Used when no extraction backend is configured.
type Disabled struct{}

func (Disabled) ExtractEntityName(context.Context, string) (Suggestion, error) {
	return Suggestion{}, ErrNoSuggestion
}

func (Disabled) ClassifyCategory(context.Context, string, []string) (Suggestion, error) {
	return Suggestion{}, ErrNoSuggestion
}
