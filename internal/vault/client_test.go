package vault

import (
	"context"
	"errors"
	"testing"

	"standup-desk/internal/config"
	"standup-desk/internal/testutil"
)

func TestClient_SecretRoundTrip(t *testing.T) {
	addr := testutil.SetupVault(t)
	ctx := context.Background()

	client, err := NewClient(&config.VaultConfig{Address: addr, Token: testutil.VaultToken})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if err := client.Health(); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	if _, err := client.GetSecret(ctx, "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}

	if err := client.StoreSecret(ctx, "standup-desk", map[string]interface{}{
		"jwt_secret": "from-vault",
		"retries":    3,
	}); err != nil {
		t.Fatalf("StoreSecret returned error: %v", err)
	}

	values, err := client.GetStrings(ctx, "standup-desk")
	if err != nil {
		t.Fatalf("GetStrings returned error: %v", err)
	}
	if values["jwt_secret"] != "from-vault" {
		t.Errorf("Expected jwt_secret from-vault, got %q", values["jwt_secret"])
	}
	if _, ok := values["retries"]; ok {
		t.Error("Expected non-string values to be dropped")
	}
}

func TestLoadSecrets(t *testing.T) {
	addr := testutil.SetupVault(t)
	ctx := context.Background()

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "from-env"},
		Vault: config.VaultConfig{
			Address:    addr,
			Token:      testutil.VaultToken,
			Mount:      "secret",
			SecretPath: "standup-desk",
			Enabled:    true,
		},
	}

	// nothing stored yet: configuration stays as it is
	if err := LoadSecrets(ctx, cfg); err != nil {
		t.Fatalf("LoadSecrets returned error: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("Expected JWT secret unchanged, got %q", cfg.JWT.Secret)
	}

	client, err := NewClient(&cfg.Vault)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if err := client.StoreSecret(ctx, "standup-desk", map[string]interface{}{
		"jwt_secret":            "from-vault",
		"slack_manager_webhook": "https://hooks.slack.com/services/T/B/X",
	}); err != nil {
		t.Fatalf("StoreSecret returned error: %v", err)
	}

	if err := LoadSecrets(ctx, cfg); err != nil {
		t.Fatalf("LoadSecrets returned error: %v", err)
	}
	if cfg.JWT.Secret != "from-vault" {
		t.Errorf("Expected JWT secret from vault, got %q", cfg.JWT.Secret)
	}
	if cfg.Notify.SlackManagerWebhook == "" {
		t.Error("Expected Slack webhook from vault")
	}
}
