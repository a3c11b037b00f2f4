// Package classifier talks to the plant image model. The model itself is a
// black box returning a label and a confidence for the predicted class.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/prite36/floraseven/internal/config"
)

// ErrDisabled is returned by the disabled backend.
var ErrDisabled = errors.New("image classifier is disabled")

// Classifier labels a plant image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (label string, confidence float64, err error)
}

// New builds the backend selected in the configuration.
func New(ctx context.Context, cfg *config.Config) (Classifier, error) {
	switch cfg.Classifier.Backend {
	case "http":
		return NewHTTP(cfg.Classifier.URL, cfg.ClassifierTimeout()), nil
	case "gemini":
		return NewGemini(ctx, cfg.Classifier.GeminiAPIKey, cfg.Classifier.GeminiModel)
	case "disabled", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported classifier backend %q", cfg.Classifier.Backend)
	}
}

// Disabled never classifies.
type Disabled struct{}

func (Disabled) Classify(context.Context, []byte) (string, float64, error) {
	return "", 0, ErrDisabled
}
