// Package vault resolves exchange API credentials from HashiCorp Vault.
// With Vault disabled the credentials from the exchange config are used
// as-is, so the lookup is a no-op in development.
package vault

import (
	"context"
	"fmt"
	"sync"

	"fibonacci-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// APIKeyData holds the exchange credentials stored in Vault.
type APIKeyData struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the HashiCorp Vault client.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *APIKeyData
}

// NewClient creates a new Vault client. A disabled config yields a
// client whose lookups report not-found.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetAPIKey retrieves the exchange credentials from the configured KV v2
// secret path. The first successful read is cached for the process
// lifetime.
func (c *Client) GetAPIKey(ctx context.Context) (*APIKeyData, error) {
	c.mu.RLock()
	if c.cached != nil {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("vault is disabled")
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	keys := &APIKeyData{
		APIKey:    stringField(data, "api_key"),
		SecretKey: stringField(data, "secret_key"),
	}
	if keys.APIKey == "" {
		return nil, fmt.Errorf("secret at %s has no api_key", path)
	}

	c.mu.Lock()
	c.cached = keys
	c.mu.Unlock()

	return keys, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
