package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/waterdesk/outbox"
	"github.com/waterdesk/outbox/admin"
)

const shutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var adminAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay the outbox whenever the server is reachable",
		Long: `Run until interrupted. The outbox is flushed shortly after startup, each
time the server becomes reachable again, and on a backoff schedule after a
pass that could not reach it. The debug panel is served on --admin-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("admin-addr") {
				a.cfg.Admin.Addr = adminAddr
			}

			return a.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "debug panel listen address, empty to disable (overrides config)")

	return cmd
}

func (a *app) run(ctx context.Context) error {
	cfg := a.cfg

	prober := outbox.NewProber(sessionProbe(a.client, cfg.API),
		outbox.WithProbeInterval(cfg.Delivery.ProbeInterval),
		outbox.WithProbeTimeout(cfg.Delivery.ProbeTimeout),
		outbox.WithProbeLogger(a.logger),
	)
	trigger := outbox.NewTrigger(a.manager, prober,
		outbox.WithStartupDelay(cfg.Delivery.StartupDelay),
		outbox.WithBackoff(outbox.Backoff{
			Base:       cfg.Backoff.Base,
			Max:        cfg.Backoff.Max,
			MaxRetries: cfg.Backoff.MaxRetries,
		}),
		outbox.WithTriggerLogger(a.logger),
	)

	unsubscribe := a.manager.Subscribe(outbox.ListenerFuncs{
		Flushed: func(e outbox.Flushed) {
			a.logger.Debug("order delivered", "id", e.ID)
		},
		SyncComplete: func(e outbox.SyncComplete) {
			a.logger.Info("sync complete",
				"delivered", e.Result.Delivered,
				"rejected", e.Result.Rejected,
				"transport_failed", e.Result.TransportFailed,
			)
		},
	})
	defer unsubscribe()

	a.logger.Info("outbox daemon started",
		"backend", cfg.Backend,
		"api", cfg.API.BaseURL,
		"admin", cfg.Admin.Addr,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prober.Run(ctx) })
	g.Go(func() error { return trigger.Run(ctx) })

	if cfg.Admin.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           admin.NewHandler(a.manager, a.collector, a.logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return WrapExitError(ExitFailure, "admin server", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.logger.Info("outbox daemon stopped")

	return err
}
