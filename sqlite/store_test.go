package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waterdesk/outbox"
)

func payload(productID int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"product_id":%d,"quantity":1,"payment_method":"Cash","order_date":"2024-01-01"}`, productID))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "outbox.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestStoreOpensLazily(t *testing.T) {
	s, path := newTestStore(t)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "database must not exist before first use")

	count, err := s.PendingCount(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestStoreUnavailablePath(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "missing", "dir", "outbox.db"))
	require.NoError(t, err)

	_, err = s.Insert(context.Background(), outbox.Entry{Payload: payload(1)})
	require.ErrorIs(t, err, outbox.ErrStorageUnavailable)
}

func TestStoreInsertListOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	created := time.Date(2024, 1, 1, 9, 0, 0, 123000000, time.UTC)

	var ids []int64
	for i := 1; i <= 3; i++ {
		id, err := s.Insert(ctx, outbox.Entry{Key: fmt.Sprintf("key-%d", i), Payload: payload(i), CreatedAt: created})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		require.Equal(t, ids[i], entry.ID)
		require.Equal(t, fmt.Sprintf("key-%d", i+1), entry.Key)
		require.JSONEq(t, string(payload(i+1)), string(entry.Payload))
		require.True(t, entry.CreatedAt.Equal(created))
	}
	require.Less(t, ids[0], ids[1])
	require.Less(t, ids[1], ids[2])
}

func TestStoreGeneratesKeyWhenMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Insert(ctx, outbox.Entry{Payload: payload(1)})
	require.NoError(t, err)
	_, err = s.Insert(ctx, outbox.Entry{Payload: payload(2)})
	require.NoError(t, err)

	entries, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries[0].Key)
	require.NotEqual(t, entries[0].Key, entries[1].Key)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestStoreListEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	entries, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.Insert(ctx, outbox.Entry{Payload: payload(1)})
	require.NoError(t, err)
	second, err := s.Insert(ctx, outbox.Entry{Payload: payload(2)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByID(ctx, first))
	require.NoError(t, s.DeleteByID(ctx, first), "deleting a missing id is a no-op")

	entries, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, second, entries[0].ID)

	require.NoError(t, s.Clear(ctx))
	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	third, err := s.Insert(ctx, outbox.Entry{Payload: payload(3)})
	require.NoError(t, err)
	require.Greater(t, third, second, "ids must never be reused")
}

func TestStoreRecordFailure(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id, err := s.Insert(ctx, outbox.Entry{Payload: payload(1)})
	require.NoError(t, err)

	require.NoError(t, s.RecordFailure(ctx, id, errors.New("status 400")))
	require.NoError(t, s.RecordFailure(ctx, id, errors.New("status 422")))
	require.NoError(t, s.RecordFailure(ctx, id+10, errors.New("unknown")))

	entries, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Attempts)
	require.Equal(t, "status 422", entries[0].LastError)
	require.JSONEq(t, string(payload(1)), string(entries[0].Payload))

	require.NoError(t, s.DeleteByID(ctx, id))
	var failures int
	db, err := s.open(ctx)
	require.NoError(t, err)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_failures`).Scan(&failures))
	require.Zero(t, failures, "failure rows cascade with their entry")
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := first.Insert(ctx, outbox.Entry{Payload: payload(i)})
		require.NoError(t, err)
	}
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		require.JSONEq(t, string(payload(i+1)), string(entry.Payload))
	}
}

func TestStoreClosed(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ListAll(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestStoreSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	db, err := s.open(ctx)
	require.NoError(t, err)

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	require.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestManagerOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	var sent []int64
	rejectID := int64(2)
	sender := outbox.SenderFunc(func(_ context.Context, entry outbox.Entry) error {
		sent = append(sent, entry.ID)
		if entry.ID == rejectID {
			return &outbox.RejectionError{StatusCode: 400, Message: "invalid quantity"}
		}
		return nil
	})
	m := outbox.NewManager(s, sender)

	for i := 1; i <= 3; i++ {
		id, err := m.Save(ctx, payload(i))
		require.NoError(t, err)
		require.Equal(t, int64(i), id)
	}

	result, err := m.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Delivered)
	require.Equal(t, 1, result.Rejected)
	require.Equal(t, []int64{1, 2, 3}, sent)

	require.NoError(t, s.Close())
	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := outbox.NewManager(reopened, sender).ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, rejectID, pending[0].ID)
	require.Equal(t, 1, pending[0].Attempts)
	require.Contains(t, pending[0].LastError, "invalid quantity")
}
