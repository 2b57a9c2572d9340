package vault

import (
	"context"
	"fmt"
	"os"

	vaultapi "github.com/hashicorp/vault/api"
)

// Client reads database credentials from Vault KV secrets.
type Client struct {
	api *vaultapi.Client
}

// NewClient connects to Vault at address, falling back to VAULT_ADDR when
// address is empty. The token comes from VAULT_TOKEN.
func NewClient(address string) (*Client, error) {
	cfg := vaultapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	api, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	if api.Token() == "" {
		if token := os.Getenv("VAULT_TOKEN"); token != "" {
			api.SetToken(token)
		}
	}
	if api.Token() == "" {
		return nil, fmt.Errorf("vault token not set (VAULT_TOKEN)")
	}

	return &Client{api: api}, nil
}

// ReadField fetches a single string field from the secret at path. Both KV v1
// and KV v2 (nested "data") layouts are handled.
func (c *Client) ReadField(ctx context.Context, path, field string) (string, error) {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %s not found", path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	raw, ok := data[field]
	if !ok {
		return "", fmt.Errorf("secret %s has no field %q", path, field)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret %s field %q is not a string", path, field)
	}
	if value == "" {
		return "", fmt.Errorf("secret %s field %q is empty", path, field)
	}

	return value, nil
}
