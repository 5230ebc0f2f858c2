package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/api"
	"github.com/dvloznov/finance-ledger/internal/archive"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/credential"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/realtime"
	"github.com/dvloznov/finance-ledger/internal/session"
	"github.com/rs/zerolog"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a YAML config file (default ./ledger.yaml if present)")
	archiveOnExit := flag.Bool("archive-on-exit", false, "Archive a snapshot to GCS before exiting")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	log := logger.WithFields(logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}), map[string]interface{}{
		"service": "ledger-sync",
	})

	creds := credential.NewStore(cfg.Credential.Token)
	client, err := api.NewClient(cfg.API.BaseURL, creds,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(log),
		api.WithUnauthorizedHook(creds.Clear),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API client")
	}
	store := ledger.NewStore(client, nil, log)

	log.Info().Str("api", cfg.API.BaseURL).Msg("Starting sync service")

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	sess, err := session.Open(ctx, cfg.API.BaseURL, store, creds, realtime.Options{
		MinBackoff:        cfg.Realtime.MinBackoff,
		MaxBackoff:        cfg.Realtime.MaxBackoff,
		PingInterval:      cfg.Realtime.PingInterval,
		HandshakeTimeout:  cfg.Realtime.HandshakeTimeout,
		ReloadOnReconnect: cfg.Realtime.ReloadOnReconnect,
		OnStateChange: func(s realtime.State) {
			log.Info().Str("state", s.String()).Msg("Push channel state changed")
		},
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session")
	}

	if err := sess.Sync(ctx); err != nil {
		// The store records the error; reconnects reload, so keep running.
		log.Error().Err(err).Msg("Initial sync failed")
	}

	snapshots, unsubscribe := store.Subscribe()
	defer unsubscribe()

	log.Info().Msg("Sync service started, waiting for updates...")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-sess.Done():
			log.Warn().Msg("Session ended")
			break loop
		case snap := <-snapshots:
			logSnapshot(log, snap, sess.ChannelState())
		}
	}

	log.Info().Msg("Shutting down sync service...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if *archiveOnExit {
		if err := archiveSnapshot(logger.WithContext(shutdownCtx, log), cfg, store); err != nil {
			log.Error().Err(err).Msg("Failed to archive snapshot")
		}
	}

	log.Info().Msg("Sync service exited")
}

func logSnapshot(log zerolog.Logger, snap ledger.Snapshot, state realtime.State) {
	ev := log.Info().
		Int("records", len(snap.Records)).
		Bool("loading", snap.Loading).
		Str("income", snap.Totals.Income.StringFixed(2)).
		Str("expense", snap.Totals.Expense.StringFixed(2)).
		Str("balance", snap.Totals.Balance.StringFixed(2)).
		Str("channel", state.String()).
		Uint64("version", snap.Version)
	if snap.LastError != nil {
		ev = ev.AnErr("last_error", snap.LastError).Str("last_error_op", string(snap.LastErrorOp))
	}
	ev.Msg("Ledger updated")
}

func archiveSnapshot(ctx context.Context, cfg *config.Config, store *ledger.Store) error {
	snap := store.Snapshot()
	if snap.User == nil && len(snap.Records) == 0 {
		log := logger.FromContext(ctx)
		log.Info().Msg("Nothing to archive")
		return nil
	}

	gcs, err := archive.NewGCSStore(ctx, archive.GCSOptions{
		Endpoint:        cfg.Archive.Endpoint,
		CredentialsFile: cfg.Archive.CredentialsFile,
	})
	if err != nil {
		return err
	}
	defer gcs.Close()

	a, err := archive.NewArchiver(gcs, cfg.Archive.Bucket, cfg.Archive.Prefix)
	if err != nil {
		return err
	}

	sum := aggregate.Compute(snap.Records, snap.User, time.Local, aggregate.SeriesOptions{Baseline: true, Anchor: time.Now()})
	_, err = a.Archive(ctx, snap, sum)
	return err
}
