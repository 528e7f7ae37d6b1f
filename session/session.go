// Package session ties the notification store, the admin API and the event transport together for a
// single authenticated administrator.
package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/freshbasket/notification-sync/apiclient"
	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/db"
	"github.com/freshbasket/notification-sync/handlers"
	"github.com/freshbasket/notification-sync/handlerset"
	"github.com/freshbasket/notification-sync/logging"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/freshbasket/notification-sync/model"
	"github.com/freshbasket/notification-sync/reconciler"
	"github.com/freshbasket/notification-sync/store"
	"github.com/freshbasket/notification-sync/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logging.Log.WithField("package", "session")

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("the session has already been started")

// ErrClosed is returned when Start is called on a closed session.
var ErrClosed = errors.New("the session has been closed")

// ErrUnknownAdmin is returned when the journal is enabled but the administrator's email address
// can't be determined.
var ErrUnknownAdmin = errors.New("the administrator's email address is unknown, so events can't be journalled")

// ErrNoJournal is returned when the journal is queried but isn't enabled.
var ErrNoJournal = errors.New("the event journal is not enabled")

// TransportFactory creates the event transport for a session. Inbound events must be dispatched
// through hs.
type TransportFactory func(hs *handlerset.HandlerSet, token, clientID string) transport.EventTransport

// Options contains everything needed to create a session.
type Options struct {
	Settings common.Settings

	// Registry receives the session's metrics. A new registry is created if it's nil.
	Registry *prometheus.Registry

	// Notifier raises toasts. Toasts are logged if it's nil.
	Notifier handlers.Notifier

	// DB is the event journal's database. The session takes ownership of it. The journal is
	// disabled if it's nil.
	DB *sql.DB

	// NewTransport overrides the transport selected by the settings.
	NewTransport TransportFactory

	// Now overrides the clock used to check token expiry.
	Now func() time.Time
}

// Session is the notification sync state of one administrator. It's created by New and torn down by
// Close.
type Session struct {
	ID         string
	Store      *store.Store
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	API        *apiclient.Client
	Reconciler *reconciler.Reconciler

	settings     common.Settings
	notifier     handlers.Notifier
	handlers     *handlerset.HandlerSet
	newTransport TransportFactory
	refresher    *reconciler.Refresher
	db           *sql.DB
	now          func() time.Time

	mu            sync.Mutex
	started       bool
	closed        bool
	admin         string
	journal       *db.Journal
	transport     transport.EventTransport
	subscriptions []*handlerset.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// New creates a session. Nothing is contacted until Start is called.
func New(opts Options) (*Session, error) {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	id := uuid.New().String()
	m := metrics.New(registry)
	s := store.New()
	metrics.RegisterStore(registry, s)

	api := apiclient.New(opts.Settings.API, id, m)
	r := reconciler.New(api, s)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = handlers.NewLogNotifier(m.Toasts)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	session := &Session{
		ID:         id,
		Store:      s,
		Registry:   registry,
		Metrics:    m,
		API:        api,
		Reconciler: r,
		settings:   opts.Settings,
		notifier:   notifier,
		handlers:   handlerset.New(m),
		db:         opts.DB,
		now:        now,
	}

	session.newTransport = opts.NewTransport
	if session.newTransport == nil {
		session.newTransport = session.defaultTransport
	}

	if opts.Settings.ReconcileSchedule != "" {
		refresher, err := reconciler.NewRefresher(r, opts.Settings.ReconcileSchedule)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create the session")
		}
		session.refresher = refresher
	}

	return session, nil
}

func (s *Session) defaultTransport(hs *handlerset.HandlerSet, token, clientID string) transport.EventTransport {
	if s.settings.Transport == common.TransportAMQP {
		return transport.NewAMQP(s.settings.AMQP, model.EventNames, hs)
	}
	return transport.NewWebSocket(s.settings.Socket, token, clientID, hs, s.Metrics)
}

// authenticate determines the bearer token, logging in if necessary, and returns the token along
// with the administrator's email address.
func (s *Session) authenticate(ctx context.Context) (string, string, error) {
	wrapMsg := "unable to authenticate"
	auth := s.settings.Auth

	token := auth.Token
	if token != "" {
		expired, err := apiclient.TokenExpired(token, s.now())
		switch {
		case err != nil:
			log.WithError(err).Warn("the configured token can't be inspected; using it as is")
		case expired && auth.HasLogin():
			log.Info("the configured token has expired; logging in")
			token = ""
		case expired:
			return "", "", errors.New(wrapMsg + ": the configured token has expired")
		}
	}

	if token == "" {
		resp, err := s.API.Login(ctx, auth.Email, auth.Password)
		if err != nil {
			return "", "", errors.Wrap(err, wrapMsg)
		}
		email := resp.Email
		if email == "" {
			email = auth.Email
		}
		return resp.Token, email, nil
	}

	email := apiclient.TokenEmail(token)
	if email == "" {
		email = auth.Email
	}
	return token, email, nil
}

// Start authenticates, subscribes to every inbound event, connects the transport and loads the
// first page of notifications. Transport and page load failures are logged rather than returned.
// The initial load is abandoned if either ctx is cancelled or the session is closed.
func (s *Session) Start(ctx context.Context) error {
	sessionCtx, err := s.start(ctx)
	if err != nil {
		return err
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessionCtx, cancel)
	defer stop()

	// Failures are logged by the reconciler.
	_ = s.Reconciler.LoadNotifications(loadCtx, 1)

	return nil
}

func (s *Session) start(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.started {
		return nil, ErrAlreadyStarted
	}

	token, admin, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	s.API.SetToken(token)
	s.admin = admin

	if s.db != nil {
		if admin == "" {
			return nil, ErrUnknownAdmin
		}
		s.journal = db.NewJournal(s.db, admin)
		s.handlers.SetRecorder(s.journal)
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.transport = s.newTransport(s.handlers, token, s.ID)

	handlerFor := handlers.InitMessageHandlers(s.Store, s.notifier)
	for _, name := range model.EventNames {
		s.subscriptions = append(s.subscriptions, s.transport.On(name, handlerFor[name]))
	}

	if err := s.transport.Connect(s.ctx); err != nil {
		log.WithError(err).Error("unable to connect the event transport")
	}

	if s.refresher != nil {
		s.refresher.Start(s.ctx)
	}

	s.started = true
	log.WithField("admin", admin).WithField("session", s.ID).Info("notification session started")

	return s.ctx, nil
}

// Admin returns the email address of the authenticated administrator.
func (s *Session) Admin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}

// Connected reports whether the event transport currently has a live connection. Transports that
// don't report their state are considered connected once the session has started.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.closed {
		return false
	}
	if reporter, ok := s.transport.(interface{ Connected() bool }); ok {
		return reporter.Connected()
	}
	return true
}

// JournalCount returns the number of events recorded for the administrator.
func (s *Session) JournalCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	journal := s.journal
	s.mu.Unlock()

	if journal == nil {
		return 0, ErrNoJournal
	}
	return journal.Count(ctx)
}

// Close stops the periodic refresh, releases every subscription and disconnects the transport. Only
// the first call has any effect.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var result error
	if s.started {
		s.cancel()
		if s.refresher != nil {
			s.refresher.Stop()
		}
		for _, subscription := range s.subscriptions {
			subscription.Unsubscribe()
		}
		s.subscriptions = nil
		s.handlers.SetRecorder(nil)
		if err := s.transport.Disconnect(); err != nil {
			result = errors.Wrap(err, "unable to disconnect the event transport")
		}
	}

	if s.journal != nil {
		if err := s.journal.Close(); err != nil && result == nil {
			result = errors.Wrap(err, "unable to close the event journal")
		}
	} else if s.db != nil {
		if err := s.db.Close(); err != nil && result == nil {
			result = errors.Wrap(err, "unable to close the event journal")
		}
	}

	log.WithField("session", s.ID).Info("notification session closed")
	return result
}
