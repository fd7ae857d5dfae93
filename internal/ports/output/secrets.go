package output

import "context"

// SecretStore fetches secrets by name.
type SecretStore interface {
	// GetSecret returns the latest version of the named secret. A missing
	// secret is reported with an error wrapping domain.ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)
}
