// Package ledger tracks which messages have already been processed so that
// reruns are idempotent. The engine depends only on the three-operation
// capability set below; retention of old records is an external concern.
package ledger

import (
	"context"
	"errors"
)

// Key identifies one processed message.
type Key struct {
	Account string
	Folder  string
	UID     string
}

// Ledger is the processed-message store. Record is idempotent: recording the
// same key twice overwrites rather than duplicating.
type Ledger interface {
	// IsProcessed reports whether the key has a record. It is called before
	// fetching message content, so it must stay cheap.
	IsProcessed(ctx context.Context, key Key) (bool, error)
	// Record upserts the record for key with the given outcome.
	Record(ctx context.Context, key Key, outcome string) error
	// Forget removes the record for key, re-enabling processing.
	// Administrative use only.
	Forget(ctx context.Context, key Key) error

	Close() error
}

// ErrNotFound is returned by Forget when no record exists for the key.
var ErrNotFound = errors.New("no processed record for key")
