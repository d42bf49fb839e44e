// Package credentials stores ambient provider API keys in the database so a
// deployment can run without keys in its environment.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"heirloom/internal/infra"
	"heirloom/internal/sqlinline"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Providers lists the provider names the store accepts.
var Providers = []string{ProviderOpenRouter, ProviderGemini}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// APIKey returns the stored key for provider, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context, provider string) (string, error) {
	if err := validProvider(provider); err != nil {
		return "", err
	}
	var key string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s credential: %w", provider, err)
	}
	return strings.TrimSpace(key), nil
}

// SetAPIKey stores or replaces the key for provider.
func (s *Store) SetAPIKey(ctx context.Context, provider, key string) error {
	if err := validProvider(provider); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New(provider + " api key is required")
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, key); err != nil {
		return fmt.Errorf("store %s credential: %w", provider, err)
	}
	return nil
}

// FillMissing loads stored keys for providers whose key is absent from cfg.
// Environment keys always win.
func (s *Store) FillMissing(ctx context.Context, cfg *infra.Config) error {
	if cfg.OpenRouterAPIKey == "" {
		key, err := s.APIKey(ctx, ProviderOpenRouter)
		if err != nil {
			return err
		}
		cfg.OpenRouterAPIKey = key
	}
	if cfg.GeminiAPIKey == "" {
		key, err := s.APIKey(ctx, ProviderGemini)
		if err != nil {
			return err
		}
		cfg.GeminiAPIKey = key
	}
	return nil
}

func validProvider(provider string) error {
	for _, p := range Providers {
		if p == provider {
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q", provider)
}
