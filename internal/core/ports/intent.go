package ports

import (
	"context"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// IntentCompiler turns a free-text request into a catalog search intent.
type IntentCompiler interface {
	AnalyzeIntent(ctx context.Context, message string) (domain.Intent, error)
}
