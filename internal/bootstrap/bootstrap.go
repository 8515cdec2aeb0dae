package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stone-age-io/autoregister/internal/config"
	"go.uber.org/zap"
)

// TokenProvisioner exchanges a username and password for a NetBox API token
type TokenProvisioner interface {
	ProvisionToken(ctx context.Context, username, password string) (string, error)
}

// ResolveToken returns the API token to use. With token auth, or when a
// token is configured, it is returned as-is. With provision auth the token
// file is read if it exists; otherwise a token is provisioned with the
// password from the configured environment variable and written to disk.
func ResolveToken(ctx context.Context, cfg *config.NetBoxConfig, provisioner TokenProvisioner, logger *zap.Logger) (string, error) {
	if cfg.Auth.Type != "provision" || cfg.Token != "" {
		return cfg.Token, nil
	}

	tokenPath := cfg.Auth.TokenFile

	// If the token file already exists, skip provisioning
	token, err := readTokenFile(tokenPath)
	if err == nil {
		logger.Info("Token file exists, skipping provisioning", zap.String("path", tokenPath))
		return token, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("Token file not found, provisioning from NetBox",
		zap.String("path", tokenPath),
		zap.String("username", cfg.Auth.Username))

	// Read password from environment variable
	password := os.Getenv(cfg.Auth.PasswordEnv)
	if password == "" {
		return "", fmt.Errorf("bootstrap: environment variable %s is not set or empty", cfg.Auth.PasswordEnv)
	}

	token, err = provisioner.ProvisionToken(ctx, cfg.Auth.Username, password)
	if err != nil {
		return "", fmt.Errorf("bootstrap: token provisioning failed: %w", err)
	}
	logger.Info("Provisioned NetBox API token")

	if err := writeTokenFile(tokenPath, token); err != nil {
		return "", fmt.Errorf("bootstrap: failed to write token file: %w", err)
	}
	logger.Info("Token file written", zap.String("path", tokenPath))

	return token, nil
}

// readTokenFile returns the trimmed token. An empty file is an error so a
// truncated write is never used as a credential.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// writeTokenFile writes the token to disk, creating parent directories if
// needed. File is written with restrictive permissions.
func writeTokenFile(path, token string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
