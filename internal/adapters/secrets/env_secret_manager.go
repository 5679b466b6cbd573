package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain/ports"
)

// envSecretManager resolves secrets from environment variables. The secret
// name is uppercased and non-alphanumerics become underscores, so
// "webhooks/paystack/hmac" reads WEBHOOKS_PAYSTACK_HMAC.
// Intended for development and small deployments; production uses AWS
// Secrets Manager or Vault.
type envSecretManager struct {
	logger *zap.Logger
}

// NewEnvSecretManager creates an environment-variable backed secret manager
func NewEnvSecretManager(logger *zap.Logger) ports.SecretManager {
	return &envSecretManager{logger: logger}
}

func envKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return key
}

// GetSecret retrieves a secret from the environment
func (m *envSecretManager) GetSecret(ctx context.Context, name string) (string, error) {
	key := envKey(name)

	value := os.Getenv(key)
	if value == "" {
		m.logger.Warn("Secret not set in environment",
			zap.String("secret", name),
			zap.String("env_var", key),
		)
		return "", fmt.Errorf("secret not found: %s", name)
	}

	return value, nil
}
