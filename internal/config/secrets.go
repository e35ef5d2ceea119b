package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// SecretProvider resolves named secrets from a backend. Resolve returns the
// fallback when the backend has no value, so a plain environment setup keeps
// working with the vault backend enabled.
type SecretProvider interface {
	Resolve(name, fallback string) string
}

// NewSecretProvider builds the provider selected by SECRETS_BACKEND.
// "aws" is recognized but not implemented.
func NewSecretProvider(backend string) (SecretProvider, error) {
	switch strings.ToLower(backend) {
	case "", "env":
		return envProvider{}, nil
	case "vault":
		return newVaultProvider()
	case "aws":
		return nil, &errs.ConfigurationError{Key: "SECRETS_BACKEND",
			Message: "aws backend is recognized but not supported"}
	default:
		return nil, &errs.ConfigurationError{Key: "SECRETS_BACKEND",
			Message: fmt.Sprintf("unknown backend %q", backend)}
	}
}

// envProvider reads secrets straight from the process environment.
type envProvider struct{}

func (envProvider) Resolve(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// vaultProvider reads secrets from a HashiCorp Vault KV v2 mount.
// Secret names map to lowercased keys under a single logical path.
type vaultProvider struct {
	client *vault.Client
	mount  string
	path   string

	mu     sync.RWMutex
	data   map[string]interface{}
	loaded time.Time
	ttl    time.Duration
}

func newVaultProvider() (*vaultProvider, error) {
	cfg := vault.DefaultConfig()
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}
	if client.Token() == "" {
		return nil, &errs.ConfigurationError{Key: "VAULT_TOKEN",
			Message: "vault backend selected but no token is set"}
	}

	mount := os.Getenv("VAULT_MOUNT")
	if mount == "" {
		mount = "secret"
	}
	path := os.Getenv("VAULT_SECRET_PATH")
	if path == "" {
		path = "cryptopulse"
	}

	log.Info().
		Str("vault_addr", client.Address()).
		Str("mount", mount).
		Str("path", path).
		Msg("Vault secret provider initialized")

	return &vaultProvider{
		client: client,
		mount:  mount,
		path:   path,
		ttl:    5 * time.Minute,
	}, nil
}

func (p *vaultProvider) Resolve(name, fallback string) string {
	data, err := p.load()
	if err != nil {
		log.Warn().Err(err).Str("secret", name).
			Msg("Vault lookup failed, falling back to environment value")
		return fallback
	}
	if v, ok := data[strings.ToLower(name)].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (p *vaultProvider) load() (map[string]interface{}, error) {
	p.mu.RLock()
	if p.data != nil && time.Since(p.loaded) < p.ttl {
		defer p.mu.RUnlock()
		return p.data, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data != nil && time.Since(p.loaded) < p.ttl {
		return p.data, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	secret, err := p.client.KVv2(p.mount).Get(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s/%s: %w", p.mount, p.path, err)
	}
	p.data = secret.Data
	p.loaded = time.Now()
	return p.data, nil
}
