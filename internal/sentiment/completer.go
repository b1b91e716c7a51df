package sentiment

import (
	"context"
	"fmt"

	"stocknet/internal/config"
)

// NewCompleter builds the Completer selected by cfg.Provider. The "none"
// provider returns a nil Completer.
func NewCompleter(ctx context.Context, cfg config.Sentiment) (Completer, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaCompleter(cfg.Endpoint, cfg.Model, cfg.Timeout()), nil
	case "genai":
		c, err := NewGenAICompleter(ctx, cfg.APIKey, cfg.Model, cfg.Timeout())
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Provider)
	}
}
