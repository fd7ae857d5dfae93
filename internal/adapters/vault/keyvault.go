// Package vault resolves storage credentials from Azure Key Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// Config holds the service principal and vault used to look up secrets.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Account      string // Key Vault name
}

// URL returns the vault endpoint.
func (c Config) URL() string {
	return "https://" + c.Account + ".vault.azure.net/"
}

type secretClient interface {
	GetSecret(ctx context.Context, name, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVault implements output.SecretStore with the latest version of each secret.
type KeyVault struct {
	client secretClient
	name   string
}

// NewKeyVault authenticates with a client secret credential and connects to the vault.
func NewKeyVault(cfg Config) (*KeyVault, error) {
	if cfg.Account == "" {
		return nil, &domain.ConfigError{Field: "vault.account", Message: "key vault name is required"}
	}

	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("creating client secret credential: %w", err)
	}

	client, err := azsecrets.NewClient(cfg.URL(), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key vault client: %w", err)
	}

	return &KeyVault{client: client, name: cfg.Account}, nil
}

var _ output.SecretStore = (*KeyVault)(nil)

// GetSecret implements output.SecretStore. A missing secret yields a
// *domain.ConfigError wrapping domain.ErrUnconfiguredAccount.
func (v *KeyVault) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := v.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", domain.UnconfiguredAccountError(name, v.name)
		}
		return "", fmt.Errorf("%w: reading secret %s from %s: %w", domain.ErrUnavailable, name, v.name, err)
	}
	if resp.Value == nil {
		return "", domain.UnconfiguredAccountError(name, v.name)
	}
	return *resp.Value, nil
}
