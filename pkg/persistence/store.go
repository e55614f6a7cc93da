// Package persistence stores serialized conversations keyed by session id.
// The payload is opaque to the store; callers decide the serialization
// format. Writes are last-write-wins.
package persistence

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, payload []byte) error
	Delete(ctx context.Context, sessionID string) error
}
