package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/waterdesk/outbox"
)

// recordFailure bumps diagnostics only while the entry is still queued.
var recordFailure = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return 1
`)

type keys struct {
	seq      string
	entries  string
	payloads string
	meta     string
	attempts string
	errors   string
}

// newKeys hash-tags the prefix so every key lands in one cluster slot; the Lua
// script and the MULTI blocks touch several of them at once.
func newKeys(prefix string) keys {
	tag := prefix
	if !strings.Contains(prefix, "{") {
		tag = "{" + prefix + "}"
	}

	return keys{
		seq:      tag + ":seq",
		entries:  tag + ":entries",
		payloads: tag + ":payloads",
		meta:     tag + ":meta",
		attempts: tag + ":attempts",
		errors:   tag + ":errors",
	}
}

type meta struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a Redis-backed outbox.Store.
type Store struct {
	client redis.UniversalClient
	owned  bool
	cfg    Config
	keys   keys
}

var (
	_ outbox.Store           = (*Store)(nil)
	_ outbox.PendingCounter  = (*Store)(nil)
	_ outbox.FailureRecorder = (*Store)(nil)
)

// New parses a redis:// URL and returns a Store. The client dials on first use.
func New(url string, opts ...Option) (*Store, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("outbox redis: parse url: %w", err)
	}

	store, err := NewWithClient(redis.NewClient(ropts), opts...)
	if err != nil {
		return nil, err
	}
	store.owned = true

	return store, nil
}

// NewWithClient returns a Store on an existing client. The caller owns client.
func NewWithClient(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Store{client: client, cfg: cfg, keys: newKeys(cfg.Prefix)}, nil
}

// Close closes the client when the Store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.client.Close()
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapError("outbox redis: ping failed", err)
	}

	return nil
}

// Insert implements outbox.Store.
func (s *Store) Insert(ctx context.Context, entry outbox.Entry) (int64, error) {
	key := entry.Key
	if key == "" {
		var err error
		key, err = s.cfg.KeyGenerator()
		if err != nil {
			return 0, fmt.Errorf("outbox redis: generate key failed: %w", err)
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.cfg.Clock.Now()
	}

	encoded, err := json.Marshal(meta{Key: key, CreatedAt: createdAt.UTC()})
	if err != nil {
		return 0, fmt.Errorf("outbox redis: encode meta failed: %w", err)
	}

	id, err := s.client.Incr(ctx, s.keys.seq).Result()
	if err != nil {
		return 0, wrapError("outbox redis: next id failed", err)
	}
	field := strconv.FormatInt(id, 10)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.payloads, field, []byte(entry.Payload))
		pipe.HSet(ctx, s.keys.meta, field, encoded)
		pipe.ZAdd(ctx, s.keys.entries, redis.Z{Score: float64(id), Member: field})

		return nil
	})
	if err != nil {
		return 0, wrapError("outbox redis: insert failed", err)
	}

	return id, nil
}

// ListAll implements outbox.Store.
func (s *Store) ListAll(ctx context.Context) ([]outbox.Entry, error) {
	fields, err := s.client.ZRange(ctx, s.keys.entries, 0, -1).Result()
	if err != nil {
		return nil, wrapError("outbox redis: list failed", err)
	}

	entries := make([]outbox.Entry, 0, len(fields))
	if len(fields) == 0 {
		return entries, nil
	}

	var payloads, metas, attempts, lastErrors *redis.SliceCmd
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		payloads = pipe.HMGet(ctx, s.keys.payloads, fields...)
		metas = pipe.HMGet(ctx, s.keys.meta, fields...)
		attempts = pipe.HMGet(ctx, s.keys.attempts, fields...)
		lastErrors = pipe.HMGet(ctx, s.keys.errors, fields...)

		return nil
	})
	if err != nil {
		return nil, wrapError("outbox redis: load failed", err)
	}

	for i, field := range fields {
		payload, ok := payloads.Val()[i].(string)
		if !ok {
			// Deleted between ZRANGE and HMGET.
			continue
		}

		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("outbox redis: bad entry id %q: %w", field, err)
		}

		entry := outbox.Entry{ID: id, Payload: json.RawMessage(payload)}
		if raw, ok := metas.Val()[i].(string); ok {
			var m meta
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return nil, fmt.Errorf("outbox redis: entry %d has bad meta: %w", id, err)
			}
			entry.Key = m.Key
			entry.CreatedAt = m.CreatedAt.UTC()
		}
		if raw, ok := attempts.Val()[i].(string); ok {
			entry.Attempts, _ = strconv.Atoi(raw)
		}
		if raw, ok := lastErrors.Val()[i].(string); ok {
			entry.LastError = raw
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// DeleteByID implements outbox.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	field := strconv.FormatInt(id, 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.keys.entries, field)
		pipe.HDel(ctx, s.keys.payloads, field)
		pipe.HDel(ctx, s.keys.meta, field)
		pipe.HDel(ctx, s.keys.attempts, field)
		pipe.HDel(ctx, s.keys.errors, field)

		return nil
	})
	if err != nil {
		return wrapError("outbox redis: delete failed", err)
	}

	return nil
}

// Clear implements outbox.Store. The id sequence is kept.
func (s *Store) Clear(ctx context.Context) error {
	err := s.client.Del(ctx, s.keys.entries, s.keys.payloads, s.keys.meta, s.keys.attempts, s.keys.errors).Err()
	if err != nil {
		return wrapError("outbox redis: clear failed", err)
	}

	return nil
}

// PendingCount implements outbox.PendingCounter.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	count, err := s.client.ZCard(ctx, s.keys.entries).Result()
	if err != nil {
		return 0, wrapError("outbox redis: pending count failed", err)
	}

	return int(count), nil
}

// RecordFailure implements outbox.FailureRecorder. Unknown ids are ignored.
func (s *Store) RecordFailure(ctx context.Context, id int64, failure error) error {
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	err := recordFailure.Run(ctx, s.client,
		[]string{s.keys.entries, s.keys.attempts, s.keys.errors},
		strconv.FormatInt(id, 10), msg,
	).Err()
	if err != nil {
		return wrapError("outbox redis: record failure failed", err)
	}

	return nil
}

// wrapError marks everything except server replies and cancellation as ErrStorageUnavailable.
func wrapError(op string, err error) error {
	if isUnavailable(err) {
		return outbox.StorageError(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var reply redis.Error

	return !errors.As(err, &reply)
}

func randomKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}
