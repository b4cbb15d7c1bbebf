package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRecordAndLookup(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	key := Key{Account: "office", Folder: "INBOX", UID: "101"}

	processed, err := l.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, l.Record(ctx, key, "extracted"))

	processed, err = l.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestLedgerRecordIsIdempotent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	key := Key{Account: "office", Folder: "INBOX", UID: "101"}

	require.NoError(t, l.Record(ctx, key, "extracted"))
	require.NoError(t, l.Record(ctx, key, "skipped"))

	processed, err := l.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestLedgerKeysAreScoped(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Key{Account: "office", Folder: "INBOX", UID: "101"}, "extracted"))

	for _, key := range []Key{
		{Account: "personal", Folder: "INBOX", UID: "101"},
		{Account: "office", Folder: "Archive", UID: "101"},
		{Account: "office", Folder: "INBOX", UID: "102"},
	} {
		processed, err := l.IsProcessed(ctx, key)
		require.NoError(t, err)
		assert.False(t, processed, "key %+v", key)
	}
}

func TestLedgerForget(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	key := Key{Account: "office", Folder: "INBOX", UID: "101"}

	assert.ErrorIs(t, l.Forget(ctx, key), ErrNotFound)

	require.NoError(t, l.Record(ctx, key, "extracted"))
	require.NoError(t, l.Forget(ctx, key))

	processed, err := l.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.False(t, processed)
}
