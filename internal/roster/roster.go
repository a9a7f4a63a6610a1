// Package roster supplies the set of people currently allowed to use the
// bot and read the channel.
package roster

import (
	"context"

	"staffbot/internal/names"
)

// Provider returns a normalized snapshot of valid personnel names.
// Implementations return an *apperr.ExternalServiceError when the source
// cannot be read.
type Provider interface {
	CurrentNames(ctx context.Context) (names.Set, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (names.Set, error)

func (f ProviderFunc) CurrentNames(ctx context.Context) (names.Set, error) { return f(ctx) }

// Static is a fixed roster.
type Static []string

func (s Static) CurrentNames(context.Context) (names.Set, error) { return names.NewSet(s...), nil }
