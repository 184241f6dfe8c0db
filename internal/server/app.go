// Package server assembles the backend: the PostgreSQL pool and migrations,
// the seal signing authority, object storage, the gRPC sync API, the HTTP
// audit API and the archive scheduler.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dmitrijs2005/fieldseal/internal/archive"
	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server/config"
	"github.com/dmitrijs2005/fieldseal/internal/server/evidencestore"
	"github.com/dmitrijs2005/fieldseal/internal/server/httpapi"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldseal/internal/server/services"
	"github.com/dmitrijs2005/fieldseal/internal/server/shared/db"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/fieldseal/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	grpc    *gs.GRPCServer
	http    *httpapi.Server
	archive *archive.Scheduler
}

// NewApp connects to the database, applies migrations when configured and
// wires every service. The caller must Close the returned App.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	signer, verifier, err := loadSigner(ctx, c, os.Getenv, logger)
	if err != nil {
		return nil, err
	}

	pool, err := db.Open(ctx, c.DatabaseDSN, db.DefaultPool)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	sqlDB := pool.DB

	rm := repomanager.NewPostgresRepositoryManager()
	if c.MigrateOnStart {
		if err := rm.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	mt := metrics.New()
	snapshots := openEvidenceStore(ctx, c, logger)

	syncSvc := services.NewSyncService(sqlDB, rm, c.S3Bucket, mt)
	photoSvc := services.NewPhotoService(sqlDB, rm, c)
	tokenSvc := services.NewTokenService(sqlDB, rm, []byte(c.SecretKey), c.DeviceTokenValidity, c.ShareLinkValidity)
	sealOpts := services.SealOptions{Authority: c.SealAuthority, Metrics: mt}
	if snapshots != nil {
		sealOpts.Snapshots = snapshots
	}
	sealSvc := services.NewSealService(sqlDB, rm, signer, verifier, sealOpts, logger)

	app := &App{config: c, logger: logger.With("module", "app"), db: sqlDB}
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Sync:   syncSvc,
		Photos: photoSvc,
		Seals:  sealSvc,
		Tokens: tokenSvc,
	}, mt)
	app.http = httpapi.NewServer(c.EndpointAddrHTTP, httpapi.Dependencies{
		Exports: syncSvc,
		Seals:   sealSvc,
		Tokens:  tokenSvc,
		Metrics: mt.Handler(),
		Logger:  logger,
	})
	app.archive = archive.NewScheduler(services.NewArchiveRepository(sqlDB, rm, mt), logger,
		archive.WithRetention(c.ArchiveRetention),
		archive.WithInterval(c.ArchiveInterval),
	)
	return app, nil
}

// loadSigner builds the sealing authority. Seals signed under a configured
// legacy secret stay verifiable next to RSA seals.
func loadSigner(ctx context.Context, c *config.Config, getenv func(string) string, log logging.Logger) (cryptox.Signer, evidence.SignatureVerifier, error) {
	if c.SigningAlgorithm == evidence.AlgHMACSHA256 {
		signer, err := cryptox.NewLegacyHMACSigner([]byte(c.LegacyHMACSecret), getenv)
		if err != nil {
			return nil, nil, err
		}
		ring, err := cryptox.NewKeyRing(nil).WithLegacySecret([]byte(c.LegacyHMACSecret), getenv)
		if err != nil {
			return nil, nil, err
		}
		log.Error(ctx, "LEGACY HMAC SEALING ENABLED: new seals are signed with a shared secret")
		return signer, ring, nil
	}

	key, err := cryptox.LoadPrivateKey(c.SigningKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load signing key: %w", err)
	}
	signer, err := cryptox.NewRSASigner(key)
	if err != nil {
		return nil, nil, err
	}
	ring := cryptox.NewKeyRing(signer.Public())
	if c.LegacyHMACSecret != "" {
		if ring, err = ring.WithLegacySecret([]byte(c.LegacyHMACSecret), getenv); err != nil {
			return nil, nil, err
		}
		log.Warn(ctx, "legacy HMAC seals are accepted for verification")
	}
	return signer, ring, nil
}

// openEvidenceStore returns nil when MinIO cannot be configured; seals are
// then kept in the database only.
func openEvidenceStore(ctx context.Context, c *config.Config, log logging.Logger) *evidencestore.Store {
	if c.EvidenceEndpoint == "" || c.EvidenceBucket == "" {
		return nil
	}
	store, err := evidencestore.New(evidencestore.Options{
		Endpoint:  c.EvidenceEndpoint,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Bucket:    c.EvidenceBucket,
		Region:    c.S3Region,
		UseSSL:    c.EvidenceUseSSL,
	})
	if err != nil {
		log.Warn(ctx, "evidence store disabled", "error", err)
		return nil
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Warn(ctx, "evidence bucket unavailable, snapshot retention will retry per seal", "bucket", c.EvidenceBucket, "error", err)
	}
	return store
}

// Run serves gRPC and HTTP and runs the archive scheduler until ctx is
// cancelled or one of them fails.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(ctx) })
	g.Go(func() error { return app.http.Run(ctx) })
	g.Go(func() error { return app.archive.Run(ctx) })
	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return err
}

func (app *App) Close() error {
	return app.db.Close()
}
