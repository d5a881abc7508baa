// Package app wires the session store, gateway, guard and screen services
// from configuration.
package app

import (
	"errors"
	"io"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/auth"
	"github.com/KaramelBytes/docqa-cli/internal/config"
	"github.com/KaramelBytes/docqa-cli/internal/dashboard"
	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/KaramelBytes/docqa-cli/internal/guard"
	"github.com/KaramelBytes/docqa-cli/internal/logging"
	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/phuslu/log"
)

// App holds every component of one client process.
type App struct {
	Config    *config.Global
	Logger    *log.Logger
	Store     *session.Store
	Gateway   *gateway.Client
	Guard     *guard.Guard
	Auth      *auth.Service
	Documents *documents.Client
	Library   *documents.Library
	QA        *qa.Controller
	Workspace *qa.Workspace
	Dashboard *dashboard.Aggregator

	// SessionFile is set when the session lives in a plain file that other
	// processes may rewrite.
	SessionFile string

	closers []io.Closer
}

type options struct {
	persist   session.Persistence
	logOutput io.Writer
	logger    *log.Logger
}

// Option customizes New.
type Option func(*options)

// WithPersistence overrides the configured session backend.
func WithPersistence(p session.Persistence) Option {
	return func(o *options) { o.persist = p }
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithLogger uses l as is.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds an App. A session record that fails to load is cleared and
// logged; the App starts logged out.
func New(cfg *config.Global, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, Logger: o.logger}
	if a.Logger == nil {
		a.Logger = logging.New(cfg.LogLevel, cfg.LogFormat, o.logOutput)
	}

	persist := o.persist
	if persist == nil {
		switch cfg.SessionBackend {
		case config.SessionBackendBadger:
			bp, err := session.OpenBadgerPersistence(cfg.SessionPath)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, bp)
			persist = bp
		default:
			persist = session.NewFilePersistence(cfg.SessionPath)
			a.SessionFile = cfg.SessionPath
		}
	}

	store, err := session.Open(persist)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("discarded unreadable session")
	}
	a.Store = store

	a.Gateway = gateway.New(cfg.APIBaseURL, store,
		gateway.WithTimeout(time.Duration(cfg.HTTPTimeoutSec)*time.Second),
		gateway.WithLogger(a.Logger),
	)
	a.Guard = guard.New(store)
	a.Auth = auth.NewService(a.Gateway, store)
	a.Documents = documents.NewClient(a.Gateway)
	a.Library = documents.NewLibrary(a.Documents, store)
	a.QA = qa.NewController(a.Gateway)
	a.Workspace = qa.NewWorkspace(a.QA, a.Library, store)
	a.Dashboard = dashboard.NewAggregator(a.Documents, a.QA, store)

	// the store is already cleared by the gateway when these run
	a.Gateway.OnAuthExpired(a.Library.Invalidate)
	a.Gateway.OnAuthExpired(a.Workspace.Reset)
	a.Gateway.OnAuthExpired(a.Guard.SignalExpired)
	return a, nil
}

// Logout clears the session and every screen cache.
func (a *App) Logout() error {
	err := a.Auth.Logout()
	a.Library.Invalidate()
	a.Workspace.Reset()
	return err
}

// Close releases the session backend.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
