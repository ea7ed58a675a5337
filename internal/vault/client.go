// Package vault reads application secrets from a HashiCorp Vault KV v2 mount.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"

	"standup-desk/internal/config"
)

// ErrSecretNotFound is returned when the secret path holds no data
var ErrSecretNotFound = errors.New("secret not found")

// Client wraps HashiCorp Vault API
type Client struct {
	client *api.Client
	mount  string
}

// NewClient creates a new Vault client
func NewClient(cfg *config.VaultConfig) (*Client, error) {
	apiConfig := api.DefaultConfig()
	apiConfig.Address = cfg.Address

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &Client{client: client, mount: mount}, nil
}

// StoreSecret writes a secret to the KV mount
func (c *Client) StoreSecret(ctx context.Context, path string, data map[string]interface{}) error {
	if _, err := c.client.KVv2(c.mount).Put(ctx, path, data); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

// GetSecret reads a secret from the KV mount
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := c.client.KVv2(c.mount).Get(ctx, path)
	if errors.Is(err, api.ErrSecretNotFound) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}
	return secret.Data, nil
}

// GetStrings reads a secret and keeps its string values
func (c *Client) GetStrings(ctx context.Context, path string) (map[string]string, error) {
	data, err := c.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return values, nil
}

// Health checks Vault health status
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// LoadSecrets overlays the secrets stored at cfg.Vault.SecretPath onto cfg.
// A missing secret path leaves cfg unchanged.
func LoadSecrets(ctx context.Context, cfg *config.Config) error {
	client, err := NewClient(&cfg.Vault)
	if err != nil {
		return err
	}

	secrets, err := client.GetStrings(ctx, cfg.Vault.SecretPath)
	if errors.Is(err, ErrSecretNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg.ApplySecrets(secrets)
	return nil
}
