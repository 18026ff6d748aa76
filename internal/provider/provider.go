// Package provider holds the context plumbing shared by the scene, task
// chain and prediction packages. A consumer asking for a value that was
// never installed in its context gets a MissingProviderError.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingProvider matches every MissingProviderError with errors.Is
var ErrMissingProvider = errors.New("missing provider")

// MissingProviderError is returned when a hook runs outside its provider
type MissingProviderError struct {
	Hook     string
	Provider string
}

func (e *MissingProviderError) Error() string {
	return fmt.Sprintf("%s must be used within a %s", e.Hook, e.Provider)
}

func (e *MissingProviderError) Is(target error) bool {
	return target == ErrMissingProvider
}

// Key is a typed context key, one per provided value
type Key[T any] struct {
	hook     string
	provider string
}

// NewKey creates a key whose lookups are reported as hook/provider on failure
func NewKey[T any](hook, provider string) *Key[T] {
	return &Key[T]{hook: hook, provider: provider}
}

// With installs value into ctx
func (k *Key[T]) With(ctx context.Context, value T) context.Context {
	return context.WithValue(ctx, k, value)
}

// From retrieves the value installed with With
func (k *Key[T]) From(ctx context.Context) (T, error) {
	if ctx != nil {
		if value, ok := ctx.Value(k).(T); ok {
			return value, nil
		}
	}
	var zero T
	return zero, &MissingProviderError{Hook: k.hook, Provider: k.provider}
}

// Must is From that panics when the provider is missing
func (k *Key[T]) Must(ctx context.Context) T {
	value, err := k.From(ctx)
	if err != nil {
		panic(err)
	}
	return value
}
