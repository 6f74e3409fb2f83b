// internal/provider/provider.go
package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/unclebandit/salon-messaging/internal/model"
)

// Provider performs the actual transport of a resolved message.
type Provider interface {
	Name() string
	// EnsureConfigured fails with a *appErrors.ConfigError when credentials
	// the provider needs are missing.
	EnsureConfigured() error
	Deliver(ctx context.Context, opts model.MessageOptions) (model.ProviderResponse, error)
}

// Error is a transport failure reported by a provider.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether a later attempt could succeed. Retry scheduling
// does not consult it; it is used for logging.
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}
