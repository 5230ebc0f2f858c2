package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/finance-ledger/internal/api"
	"github.com/dvloznov/finance-ledger/internal/archive"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/credential"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

// env is what every command needs: configuration, a logger and a store wired to the API.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	creds  *credential.Store
	client *api.Client
	store  *ledger.Store
}

// commonFlags registers the flags shared by every command.
func commonFlags(fs *flag.FlagSet) (cfgPath, baseURL *string) {
	cfgPath = fs.String("config", "", "Path to a YAML config file (default ./ledger.yaml if present)")
	baseURL = fs.String("api", "", "API base URL, overrides api.base_url")
	return cfgPath, baseURL
}

func newEnv(cfgPath, baseURL string) (*env, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: os.Stderr})
	creds := credential.NewStore(cfg.Credential.Token)

	client, err := api.NewClient(cfg.API.BaseURL, creds,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(log),
		api.WithUnauthorizedHook(func() {
			log.Warn().Msg("Credential rejected; run 'cli login' and set LEDGER_CREDENTIAL_TOKEN")
			creds.Clear()
		}),
	)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		log:    log,
		creds:  creds,
		client: client,
		store:  ledger.NewStore(client, nil, log),
	}, nil
}

func (e *env) context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, e.log)
}

// archiver opens the GCS-backed archiver. The caller closes the returned store.
func (e *env) archiver(ctx context.Context) (*archive.Archiver, *archive.GCSStore, error) {
	if e.cfg.Archive.Bucket == "" {
		return nil, nil, fmt.Errorf("archive.bucket is not configured (LEDGER_ARCHIVE_BUCKET)")
	}

	gcs, err := archive.NewGCSStore(ctx, archive.GCSOptions{
		Endpoint:        e.cfg.Archive.Endpoint,
		CredentialsFile: e.cfg.Archive.CredentialsFile,
	})
	if err != nil {
		return nil, nil, err
	}

	a, err := archive.NewArchiver(gcs, e.cfg.Archive.Bucket, e.cfg.Archive.Prefix)
	if err != nil {
		gcs.Close()
		return nil, nil, err
	}
	return a, gcs, nil
}
