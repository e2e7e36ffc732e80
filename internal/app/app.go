// Package app wires configuration, storage, crypto and the services into a
// running CoOrganizer instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atinyakov/CoOrganizer/internal/clipboard"
	"github.com/atinyakov/CoOrganizer/internal/config"
	"github.com/atinyakov/CoOrganizer/internal/crypto"
	"github.com/atinyakov/CoOrganizer/internal/db"
	"github.com/atinyakov/CoOrganizer/internal/intercept"
	"github.com/atinyakov/CoOrganizer/internal/repository"
	handler "github.com/atinyakov/CoOrganizer/internal/server/handler/http"
	"github.com/atinyakov/CoOrganizer/internal/service"
	"go.uber.org/zap"
)

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 30 * time.Second
)

// App is one CoOrganizer installation.
type App struct {
	Options     *config.Options
	Log         *zap.Logger
	Engine      *crypto.Engine
	Groups      *service.GroupStore
	DebugID     *service.DebugID
	Sharer      *service.ShareUploader
	Organizer   *repository.OrganizerRepository
	Importer    *service.Importer
	Interceptor *intercept.Interceptor

	storage *storage
}

// Option adjusts how Open wires an App.
type Option func(*deps)

type deps struct {
	clipboard service.Clipboard
	notifier  service.Notifier
	client    service.HTTPDoer
}

// WithClipboard replaces the system clipboard.
func WithClipboard(c service.Clipboard) Option {
	return func(d *deps) { d.clipboard = c }
}

// WithNotifier sets where user-facing messages go.
func WithNotifier(n service.Notifier) Option {
	return func(d *deps) { d.notifier = n }
}

// WithHTTPClient replaces the client used to reach the store.
func WithHTTPClient(c service.HTTPDoer) Option {
	return func(d *deps) { d.client = c }
}

// Open builds an App from opts. Close releases its storage.
func Open(ctx context.Context, opts *config.Options, log *zap.Logger, options ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	suite, err := crypto.ParseSuite(opts.Cipher)
	if err != nil {
		return nil, err
	}

	d := deps{
		clipboard: clipboard.System{},
		notifier:  NewWriterNotifier(io.Discard),
		client:    &http.Client{Timeout: time.Duration(opts.HTTPTimeout)},
	}
	for _, o := range options {
		o(&d)
	}

	st, err := openStorage(opts.Prefs)
	if err != nil {
		return nil, err
	}

	engine := crypto.New(crypto.WithSuite(suite), crypto.WithLogger(log))
	groups := service.NewGroupStore(ctx, st.prefs, engine, log.Named("groups"),
		service.WithClipboard(d.clipboard))

	debugID, err := service.LoadDebugID(ctx, st.prefs, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load debug id: %w", err)
	}

	endpoint := service.ShareEndpoint(opts.StoreHost, opts.StorePort, opts.SharePath)
	sharer := service.NewShareUploader(endpoint, d.client, engine, log.Named("share"),
		service.WithShareClipboard(d.clipboard),
		service.WithNotifier(d.notifier),
		service.WithDebugID(debugID))

	importer := service.NewImporter(groups, engine, st.organizer, log.Named("import"))
	ic := intercept.New(
		intercept.NewMatcher(opts.StoreHost, opts.StorePort, opts.ImportSuffix),
		importer, log.Named("intercept"),
		intercept.WithMaxBody(opts.MaxImportBody),
		intercept.WithImportNotifier(d.notifier))

	return &App{
		Options:     opts,
		Log:         log,
		Engine:      engine,
		Groups:      groups,
		DebugID:     debugID,
		Sharer:      sharer,
		Organizer:   st.organizer,
		Importer:    importer,
		Interceptor: ic,
		storage:     st,
	}, nil
}

// StoreURL is the base URL of the store.
func (a *App) StoreURL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(a.Options.StoreHost, strconv.Itoa(a.Options.StorePort)),
	}
}

// Handler returns the control API with the store proxy mounted behind it.
func (a *App) Handler() http.Handler {
	return handler.NewRouter(handler.Handlers{
		Groups:    &handler.GroupHandler{Groups: a.Groups},
		Share:     &handler.ShareHandler{Sharer: a.Sharer, Groups: a.Groups},
		Organizer: &handler.OrganizerHandler{Organizer: a.Organizer, Stats: a.Interceptor},
		Proxy:     intercept.NewStoreProxy(a.StoreURL(), a.Interceptor, a.Log.Named("proxy")),
	}, a.Log.Named("http"))
}

// Serve runs the control API and store proxy on addr until ctx is done.
func (a *App) Serve(ctx context.Context, addr string) error {
	if retention := time.Duration(a.Options.OrganizerRetention); retention > 0 {
		db.StartOrganizerPruner(ctx, a.Organizer, pruneInterval, retention, a.Log)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.Log.Info("starting HTTP server",
			zap.String("addr", addr),
			zap.String("store", a.StoreURL().String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("graceful HTTP server shutdown failed", zap.Error(err))
		return err
	}
	a.Log.Info("HTTP server gracefully stopped")
	return nil
}

// Close releases the App's storage.
func (a *App) Close() error {
	return a.storage.Close()
}
