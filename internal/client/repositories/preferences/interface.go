// Package preferences stores small key/value client settings in SQLite:
// filters, sort order, dropdown option caches and the access token.
package preferences

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
