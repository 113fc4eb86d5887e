//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/waterdesk/outbox"
	"github.com/waterdesk/outbox/mysql"
)

func TestStoreInsertListDeleteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	dsn := startMySQLContainer(t, ctx)
	store := openStore(t, ctx, dsn)

	ids := insertPayloads(t, ctx, store, 3)
	require.Less(t, ids[0], ids[1])
	require.Less(t, ids[1], ids[2])

	entries, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		require.Equal(t, ids[i], entry.ID)
		require.JSONEq(t, string(orderPayload(i+1)), string(entry.Payload))
		require.NotEmpty(t, entry.Key)
		require.Equal(t, time.UTC, entry.CreatedAt.Location())
	}

	require.NoError(t, store.DeleteByID(ctx, ids[1]))
	require.NoError(t, store.DeleteByID(ctx, ids[1]))

	entries, err = store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ids[0], entries[0].ID)
	require.Equal(t, ids[2], entries[1].ID)
}

func TestStoreClearKeepsIDsIncreasingIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	dsn := startMySQLContainer(t, ctx)
	store := openStore(t, ctx, dsn)

	ids := insertPayloads(t, ctx, store, 2)
	require.NoError(t, store.RecordFailure(ctx, ids[0], errors.New("status 400")))
	require.NoError(t, store.Clear(ctx))

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	next := insertPayloads(t, ctx, store, 1)
	require.Greater(t, next[0], ids[1])
}

func TestStoreRecordFailureIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	dsn := startMySQLContainer(t, ctx)
	store := openStore(t, ctx, dsn)

	ids := insertPayloads(t, ctx, store, 1)
	require.NoError(t, store.RecordFailure(ctx, ids[0], errors.New("boom")))
	require.NoError(t, store.RecordFailure(ctx, ids[0], errors.New(strings.Repeat("a", 1100))))
	require.NoError(t, store.RecordFailure(ctx, ids[0]+100, errors.New("unknown")))

	entries, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Attempts)
	require.Len(t, entries[0].LastError, 1024)

	require.NoError(t, store.DeleteByID(ctx, ids[0]))
	require.Zero(t, countRows(t, ctx, dsn, "outbox_failures"))
}

func TestStoreInsertTxRollbackIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	dsn := startMySQLContainer(t, ctx)
	store := openStore(t, ctx, dsn)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = store.InsertTx(ctx, tx, outbox.Entry{Payload: orderPayload(1)})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestManagerFlushIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	dsn := startMySQLContainer(t, ctx)
	store := openStore(t, ctx, dsn)

	var keys []string
	sender := outbox.SenderFunc(func(_ context.Context, entry outbox.Entry) error {
		keys = append(keys, entry.Key)
		if len(keys) == 2 {
			return &outbox.RejectionError{StatusCode: 400, Message: "invalid quantity"}
		}
		return nil
	})
	manager := outbox.NewManager(store, sender)

	for i := 1; i <= 3; i++ {
		_, err := manager.Save(ctx, orderPayload(i))
		require.NoError(t, err)
	}

	result, err := manager.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Delivered)
	require.Equal(t, 1, result.Rejected)
	require.Len(t, keys, 3)

	pending, err := manager.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, keys[1], pending[0].Key)
	require.Equal(t, 1, pending[0].Attempts)
}

func startMySQLContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	port := nat.Port("3306/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0.36",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "outbox",
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/outbox?parseTime=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	return fmt.Sprintf("root:secret@tcp(%s:%s)/outbox?parseTime=true", host, mappedPort.Port())
}

func openStore(t *testing.T, ctx context.Context, dsn string) *mysql.Store {
	t.Helper()
	store, err := mysql.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Migrate(ctx))

	return store
}

func orderPayload(productID int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"product_id": %d, "quantity": 2, "payment_method": "Cash"}`, productID))
}

func insertPayloads(t *testing.T, ctx context.Context, store *mysql.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		id, err := store.Insert(ctx, outbox.Entry{Payload: orderPayload(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func countRows(t *testing.T, ctx context.Context, dsn, table string) int {
	t.Helper()
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count))
	return count
}
