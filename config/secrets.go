package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// LoadSecretsFromEnv fills credential fields from environment variables,
// preferring *_FILE variants so secrets can be mounted as files (Docker and
// Kubernetes secret mounts). Called for production environments after the
// regular env pass.
func (c *Config) LoadSecretsFromEnv(_ context.Context) error {
	dsn, err := secretFromEnv("SCUOLAKIT_SQL_DSN")
	if err != nil {
		return err
	}
	if dsn != "" {
		c.Storage.SQL.DSN = dsn
	}

	pass, err := secretFromEnv("SCUOLAKIT_REDIS_PASSWORD")
	if err != nil {
		return err
	}
	if pass != "" {
		c.Storage.Redis.Password = pass
	}

	keys, err := secretFromEnv("SCUOLAKIT_SECURITY_API_KEYS")
	if err != nil {
		return err
	}
	if keys != "" {
		parts := strings.Split(keys, ",")
		c.Security.APIKeys = c.Security.APIKeys[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, p)
			}
		}
	}

	return nil
}

// secretFromEnv returns the value of name, or the contents of the file named
// by name_FILE. The file variant wins when both are set.
func secretFromEnv(name string) (string, error) {
	if path := os.Getenv(name + "_FILE"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-provided secret path
		if err != nil {
			return "", fmt.Errorf("failed to read secret file for %s: %w", name, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(name), nil
}
