package ports

import "context"

// SecretManager resolves named secrets, such as per-gateway webhook signing
// keys, from whichever backend the deployment uses (env, AWS Secrets
// Manager, Vault).
type SecretManager interface {
	GetSecret(ctx context.Context, name string) (string, error)
}
