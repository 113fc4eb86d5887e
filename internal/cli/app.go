package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/waterdesk/outbox"
	"github.com/waterdesk/outbox/admin"
	"github.com/waterdesk/outbox/internal/config"
	"github.com/waterdesk/outbox/mysql"
	"github.com/waterdesk/outbox/redisstore"
	"github.com/waterdesk/outbox/remote"
	"github.com/waterdesk/outbox/sqlite"
)

// app is the wiring shared by every subcommand that touches the outbox.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     outbox.Store
	client    *remote.Client
	manager   *outbox.Manager
	collector *admin.Collector
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg := opts.Config
	logger := opts.Logger

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open store", err)
	}

	client, err := remote.New(cfg.API.BaseURL, remote.WithLogger(logger))
	if err != nil {
		closeStore(store)
		return nil, WrapExitError(ExitCommandError, "api client", err)
	}

	collector := admin.NewCollector()
	manager := outbox.NewManager(store, client,
		outbox.WithLogger(logger),
		outbox.WithMetrics(collector),
		outbox.WithRequestTimeout(cfg.Delivery.RequestTimeout),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		client:    client,
		manager:   manager,
		collector: collector,
	}, nil
}

func (a *app) Close() {
	closeStore(a.store)
}

// ensureSession logs in when credentials are configured. An unreachable
// server is not an error here: delivery falls back to the outbox.
func (a *app) ensureSession(ctx context.Context) error {
	err := sessionProbe(a.client, a.cfg.API)(ctx)
	if err == nil || outbox.IsTransport(err) {
		if err != nil {
			a.logger.Debug("api unreachable, skipping login", "err", err)
		}
		return nil
	}

	return WrapExitError(ExitFailure, "login", err)
}

// sessionProbe checks reachability and, with credentials configured, keeps
// the session alive. Any HTTP answer to whoami means the server is reachable;
// a failed login counts as unreachable.
func sessionProbe(client *remote.Client, api config.APIConfig) outbox.ProbeFunc {
	return func(ctx context.Context) error {
		if api.Username == "" {
			return client.Ping(ctx)
		}

		_, err := client.WhoAmI(ctx)
		if outbox.IsRejection(err) {
			return nil
		}
		if !errors.Is(err, remote.ErrUnauthenticated) {
			return err
		}
		_, err = client.Login(ctx, api.Username, api.Password, api.Role)
		return err
	}
}

func openStore(ctx context.Context, cfg config.Config) (outbox.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLite.Path)
	case config.BackendMySQL:
		store, err := mysql.Open(cfg.MySQL.DSN,
			mysql.WithTable(cfg.MySQL.Table),
			mysql.WithBinaryPayload(cfg.MySQL.Binary),
		)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return redisstore.New(cfg.Redis.URL, redisstore.WithPrefix(cfg.Redis.Prefix))
	case config.BackendMemory:
		return outbox.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

func closeStore(store outbox.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
