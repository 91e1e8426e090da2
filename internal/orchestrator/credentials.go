package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mit-27/panora-sync/internal/adapter"
	"github.com/mit-27/panora-sync/internal/store"
)

// ErrConnectionInvalid is returned for a connection whose status is not valid
var ErrConnectionInvalid = errors.New("orchestrator: connection is not valid")

// CredentialResolver supplies the bearer credential and account base URL for
// one linked user and provider. store.ErrNotFound means the user never connected.
type CredentialResolver interface {
	Resolve(ctx context.Context, linkedUserID uuid.UUID, provider, vertical string) (adapter.Connection, error)
}

// StoreCredentials reads connections from the tenant store. Tokens are used as stored.
type StoreCredentials struct {
	tenants store.TenantStore
}

func NewStoreCredentials(tenants store.TenantStore) *StoreCredentials {
	return &StoreCredentials{tenants: tenants}
}

func (c *StoreCredentials) Resolve(ctx context.Context, linkedUserID uuid.UUID, provider, vertical string) (adapter.Connection, error) {
	conn, err := c.tenants.FindConnection(ctx, linkedUserID, provider, vertical)
	if err != nil {
		return adapter.Connection{}, err
	}
	if !conn.IsValid() {
		return adapter.Connection{}, fmt.Errorf("%w: %s is %s", ErrConnectionInvalid, provider, conn.Status)
	}
	return adapter.Connection{
		ID:           conn.ID,
		LinkedUserID: conn.LinkedUserID,
		Provider:     conn.ProviderSlug,
		Vertical:     conn.Vertical,
		BaseURL:      conn.AccountURL,
		AccessToken:  conn.AccessToken,
	}, nil
}
