// Package app assembles the device: store, remote client, sync queue and the
// services built on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/archive"
	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/config"
	"github.com/dmitrijs2005/fieldseal/internal/client/conflicts"
	"github.com/dmitrijs2005/fieldseal/internal/client/connectivity"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/sealing"
	"github.com/dmitrijs2005/fieldseal/internal/client/services"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"golang.org/x/sync/errgroup"
)

type options struct {
	remote client.Client
	http   *http.Client
	now    func() time.Time
	getenv func(string) string
	extra  []notify.Notifier
}

type Option func(*options)

// WithRemote replaces the gRPC client, typically with an in-memory backend.
func WithRemote(c client.Client) Option { return func(o *options) { o.remote = c } }

func WithHTTPClient(c *http.Client) Option    { return func(o *options) { o.http = c } }
func WithClock(now func() time.Time) Option   { return func(o *options) { o.now = now } }
func WithGetenv(f func(string) string) Option { return func(o *options) { o.getenv = f } }

// WithNotifier adds a sink next to the log and broadcast notifiers.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.extra = append(o.extra, n) }
}

type App struct {
	Config *config.Config
	Store  *store.Store
	Remote client.Client
	Queue  *syncqueue.Manager
	Events *notify.Broadcaster

	Conflicts *conflicts.Service
	Jobs      services.JobService
	Contacts  services.ContactService
	Photos    services.PhotoService
	Share     services.ShareService
	Sealing   *sealing.Service
	Verifier  *sealing.Verifier

	Archive *archive.Scheduler
	Watcher *connectivity.Watcher

	log     logging.Logger
	closers []func() error
}

// New opens the device store and wires every service. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...Option) (_ *App, err error) {
	o := options{http: http.DefaultClient, now: time.Now, getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	sealable, err := cfg.Sealable()
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, log: log.With("module", "app")}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Store, err = store.Open(ctx, store.Options{Path: cfg.DatabasePath, RescueDir: cfg.RescueDir, Logger: log, Now: o.now})
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	app.closers = append(app.closers, app.Store.Close)

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = app.Store.DeviceID()
	}

	app.Remote = o.remote
	if app.Remote == nil {
		gc, err := client.NewGRPCClient(cfg.ServerAddr, deviceID, cfg.DeviceToken)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", cfg.ServerAddr, err)
		}
		app.Remote = gc
	}
	app.closers = append(app.closers, app.Remote.Close)

	app.Events = notify.NewBroadcaster()
	sinks := notify.Multi{notify.NewLog(log), app.Events}
	if cfg.AMQPURL != "" {
		ch, closeFn, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// The broker is optional; local counts stay authoritative.
			app.log.Warn(ctx, "event broker unavailable", "error", err)
		} else {
			app.closers = append(app.closers, closeFn)
			sinks = append(sinks, notify.NewAMQP(ch, cfg.AMQPExchange, deviceID, log))
		}
	}
	sinks = append(sinks, o.extra...)

	app.Queue = syncqueue.NewManager(app.Store, syncqueue.Options{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		CallTimeout: cfg.CallTimeout,
		Interval:    cfg.ProcessInterval,
		Clock:       o.now,
	}, sinks, log)

	keys, err := loadKeys(ctx, cfg, o.getenv, app.log)
	if err != nil {
		return nil, err
	}
	var verifier evidence.SignatureVerifier
	if keys != nil {
		verifier = keys
	}

	app.Conflicts = conflicts.NewService(app.Store, app.Remote, app.Queue, log, o.now)
	app.Jobs = services.NewJobService(app.Store, app.Queue, app.Conflicts, app.Remote, log, o.now)
	app.Contacts = services.NewContactService(app.Store, app.Queue, app.Remote, o.now)
	app.Photos = services.NewPhotoService(app.Store, app.Queue, app.Remote, o.http, log, o.now)
	app.Share = services.NewShareService(app.Store, app.Remote)
	app.Sealing = sealing.NewService(app.Store, app.Queue, app.Remote, sealing.Options{
		Sealable:    sealable,
		Verifier:    verifier,
		CallTimeout: cfg.CallTimeout,
	}, log)
	app.Verifier = sealing.NewVerifier(app.Store.Repos().Seals, verifier, app.Remote)

	app.Archive = archive.NewScheduler(app.Store.Repos().Jobs, log,
		archive.WithRetention(cfg.ArchiveRetention),
		archive.WithInterval(cfg.ArchiveInterval),
		archive.WithClock(o.now),
	)
	app.Watcher = connectivity.NewWatcher(app.Remote, app.Queue, cfg.OnlineCheckInterval, cfg.CallTimeout, log)

	if p := app.Store.Restored(); p != nil {
		app.Queue.Emit(ctx, notify.Event{
			Kind:    notify.KindRescueRestored,
			Message: fmt.Sprintf("restored %d jobs and %d queued actions from schema %d", len(p.Jobs), len(p.Queue), p.SchemaVersion),
		})
	}
	return app, nil
}

// loadKeys returns nil when no seal public key is configured.
func loadKeys(ctx context.Context, cfg *config.Config, getenv func(string) string, log logging.Logger) (*cryptox.KeyRing, error) {
	if cfg.SealPublicKeyPath == "" && cfg.LegacyHMACSecret == "" {
		return nil, nil
	}
	ring := cryptox.NewKeyRing(nil)
	if cfg.SealPublicKeyPath != "" {
		pub, err := cryptox.LoadPublicKey(cfg.SealPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load seal public key: %w", err)
		}
		ring = cryptox.NewKeyRing(pub)
	}
	if cfg.LegacyHMACSecret == "" {
		return ring, nil
	}
	legacy, err := ring.WithLegacySecret([]byte(cfg.LegacyHMACSecret), getenv)
	if err != nil {
		return nil, err
	}
	log.Error(ctx, "LEGACY HMAC SEALING ENABLED: seals signed with a shared secret are accepted")
	return legacy, nil
}

// Run drives the connectivity watcher, the queue loop and the archive
// scheduler until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Watcher.Run(ctx) })
	g.Go(func() error { return a.Queue.Run(ctx, a.Watcher.Triggers()) })
	g.Go(func() error { return a.Archive.Run(ctx) })
	a.log.Info(ctx, "device sync running", "server", a.Config.ServerAddr)
	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
