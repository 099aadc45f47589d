package secretmanager

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideReader))

// Reader fetches one KV v2 secret as a flat key/value map.
type Reader interface {
	ReadKV(ctx context.Context, mount, path string) (map[string]any, error)
}

type vaultReader struct {
	client *vault.Client
}

// ProvideReader builds a Vault client from VAULT_ADDR, VAULT_TOKEN and the
// other standard VAULT_* variables. No request is made until ReadKV.
func ProvideReader() (Reader, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return &vaultReader{client: client}, nil
}

func (r *vaultReader) ReadKV(ctx context.Context, mount, path string) (map[string]any, error) {
	secret, err := r.client.Secrets.KvV2Read(ctx, path, vault.WithMountPath(mount))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", mount, path, err)
	}
	return secret.Data.Data, nil
}
