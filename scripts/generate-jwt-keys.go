// Command generate-jwt-keys creates the ECDSA P-256 key that signs access and
// refresh tokens. It prints a JWT_SECRET line for .env files and can write the
// key to a PEM file or into the Vault secret read at startup.
//
//	go run ./scripts -out jwt-private-key.pem
//	go run ./scripts -vault
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/vault"
)

func main() {
	out := flag.String("out", "", "write the PEM encoded key to this file")
	toVault := flag.Bool("vault", false, "store the key as jwt_secret in the configured Vault secret")
	flag.Parse()

	keyPEM, err := generateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Generated ECDSA P-256 key for JWT signing. Add this line to your .env file:")
	fmt.Printf("JWT_SECRET=%s\n", strings.ReplaceAll(string(keyPEM), "\n", `\n`))

	if *out != "" {
		if err := os.WriteFile(*out, keyPEM, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write key file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Private key saved to %s\n", *out)
	}

	if *toVault {
		if err := storeInVault(string(keyPEM)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store key in Vault: %v\n", err)
			os.Exit(1)
		}
	}
}

func generateKey() ([]byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// storeInVault merges jwt_secret into the existing secret so other keys survive
func storeInVault(keyPEM string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := vault.NewClient(&cfg.Vault)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data := map[string]interface{}{}
	existing, err := client.GetSecret(ctx, cfg.Vault.SecretPath)
	switch {
	case errors.Is(err, vault.ErrSecretNotFound):
	case err != nil:
		return err
	default:
		for k, v := range existing {
			data[k] = v
		}
	}
	data["jwt_secret"] = keyPEM

	if err := client.StoreSecret(ctx, cfg.Vault.SecretPath, data); err != nil {
		return err
	}
	slog.Info("Stored JWT signing key in Vault", "mount", cfg.Vault.Mount, "path", cfg.Vault.SecretPath)
	return nil
}
