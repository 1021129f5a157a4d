// Package server implements the keyward HTTP server, its background jobs,
// and the wiring between configuration, storage, and providers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/ginutil"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/repeat"
	"github.com/keyward/keyward/internal/server/data"
	"github.com/keyward/keyward/internal/server/providers"
	"github.com/keyward/keyward/metrics"
	"github.com/keyward/keyward/secrets"
)

type Options struct {
	// EnableLogSampling indicates whether or not to sample HTTP access logs.
	// When true, non-error HTTP GET logs will be sampled down to 1 every 7
	// seconds grouped by the request path.
	EnableLogSampling bool

	// DBDriver selects the database backend, either "sqlite" or "postgres".
	DBDriver string
	// DBConnectionString is the sqlite file path or the postgres DSN.
	DBConnectionString string

	// DBEncryptionKey names the root key protecting the database encryption
	// key on the key provider.
	DBEncryptionKey string
	// DBEncryptionKeyProvider selects which of the configured key providers
	// protects the database encryption key.
	DBEncryptionKeyProvider string

	Keys    []KeyProvider
	Secrets []SecretProvider

	Addr ListenerOptions
	API  APIOptions

	// SentryDSN enables error tracking when set. Also read from
	// the environment by the sentry client.
	SentryDSN string

	// Providers overrides the base URL for each provider's liveness
	// endpoint. Empty values use the production endpoints.
	Providers ProviderEndpoints

	// Validate controls the periodic revalidation job.
	Validate ValidateOptions
}

type ListenerOptions struct {
	HTTP    string
	Metrics string
}

type APIOptions struct {
	RequestTimeout time.Duration
}

type ProviderEndpoints struct {
	AnthropicURL string
	OpenAIURL    string
	CohereURL    string
}

type ValidateOptions struct {
	// Interval between revalidation passes. Zero disables the job.
	Interval time.Duration
	// Workers bounds concurrent provider calls per pass.
	Workers int
}

type Server struct {
	options Options
	db      *gorm.DB
	secrets map[string]secrets.SecretStorage
	keys    map[string]secrets.SymmetricKeyProvider

	registry  *providers.Registry
	validator *providers.Validator

	metricsRegistry *prometheus.Registry
	activeKeys      *prometheus.GaugeVec

	router   *gin.Engine
	Addrs    Addrs
	routines []routine
}

type Addrs struct {
	HTTP    net.Addr
	Metrics net.Addr
}

// newServer creates a Server with base dependencies initialized to zero values.
func newServer(options Options) *Server {
	return &Server{
		options: options,
		secrets: map[string]secrets.SecretStorage{},
		keys:    map[string]secrets.SymmetricKeyProvider{},
	}
}

// New creates a Server, and initializes it. The returned Server is ready to run.
func New(options Options) (*Server, error) {
	server := newServer(options)

	if err := importSecrets(options.Secrets, server.secrets); err != nil {
		return nil, fmt.Errorf("secrets config: %w", err)
	}

	if err := importKeyProviders(options.Keys, server.secrets, server.keys); err != nil {
		return nil, fmt.Errorf("key config: %w", err)
	}

	keyProviderName := options.DBEncryptionKeyProvider
	if keyProviderName == "" {
		keyProviderName = "native"
	}
	dbKeyProvider, ok := server.keys[keyProviderName]
	if !ok {
		return nil, fmt.Errorf("key provider %s not configured", keyProviderName)
	}

	driver, err := databaseDriver(options)
	if err != nil {
		return nil, err
	}

	db, err := connectDB(driver, data.NewDBOptions{
		EncryptionKeyProvider: dbKeyProvider,
		RootKeyID:             options.DBEncryptionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	server.db = db

	if err := setupSentry(options.SentryDSN); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}

	server.metricsRegistry = setupMetrics(db)
	server.activeKeys = metrics.NewActiveKeys(server.metricsRegistry)

	server.registry = providers.NewRegistry(
		providers.NewAnthropic(options.Providers.AnthropicURL),
		providers.NewOpenAI(options.Providers.OpenAIURL),
		providers.NewCohere(options.Providers.CohereURL),
	)
	server.validator = providers.NewValidator(
		server.registry,
		metrics.NewValidateAttempts(server.metricsRegistry),
		metrics.NewUnknownProviderAttempts(server.metricsRegistry),
		reportToSentry,
	)

	if err := initActiveKeysGauge(db, server.activeKeys); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if err := server.listen(); err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	return server, nil
}

// DB returns the database connection pool used by the server. It is
// primarily used by tests to create fixture data.
func (s *Server) DB() *gorm.DB {
	return s.db
}

func (s *Server) Run(ctx context.Context) error {
	s.setupBackgroundJobs(ctx)

	group, ctx := errgroup.WithContext(ctx)

	for i := range s.routines {
		group.Go(s.routines[i].run)
	}

	logging.Infof("starting keyward server (%s) - http:%s metrics:%s",
		internal.FullVersion(), s.Addrs.HTTP, s.Addrs.Metrics)

	<-ctx.Done()
	for i := range s.routines {
		s.routines[i].stop()
	}

	err := group.Wait()

	closeSentry()

	if sqlDB, dbErr := s.db.DB(); dbErr == nil {
		if dbErr := sqlDB.Close(); dbErr != nil {
			logging.L.Warn().Err(dbErr).Msg("failed to close database connection")
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectDB retries the initial connection and migration. The database
// may still be starting up when the server boots.
func connectDB(driver gorm.Dialector, dbOpts data.NewDBOptions) (*gorm.DB, error) {
	boff := backoff.NewExponentialBackOff()
	boff.MaxInterval = 5 * time.Second
	boff.MaxElapsedTime = 20 * time.Second
	waiter := repeat.NewWaiter(boff)

	for {
		db, err := data.NewDB(driver, dbOpts)
		if err == nil {
			return db, nil
		}

		logging.Warnf("database connection failed, retrying: %v", err)
		if werr := waiter.Wait(context.Background()); werr != nil {
			return nil, err
		}
	}
}

func databaseDriver(options Options) (gorm.Dialector, error) {
	switch options.DBDriver {
	case "postgres":
		return data.NewPostgresDriver(options.DBConnectionString)
	case "sqlite", "":
		return data.NewSQLiteDriver(options.DBConnectionString)
	default:
		return nil, fmt.Errorf("unknown database driver %q", options.DBDriver)
	}
}

// initActiveKeysGauge seeds the active keys gauge from the database so that
// the gauge is correct after a restart.
func initActiveKeysGauge(db *gorm.DB, gauge *prometheus.GaugeVec) error {
	keys, err := data.ListActiveAPIKeys(db)
	if err != nil {
		return err
	}

	for _, key := range keys {
		gauge.WithLabelValues(key.Provider).Inc()
	}
	return nil
}

func (s *Server) listen() error {
	ginutil.SetMode()
	router := s.GenerateRoutes()
	s.router = router

	httpErrorLog := log.New(logging.Writer(), "", 0)
	metricsServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.Metrics,
		Handler:           metrics.NewHandler(s.metricsRegistry),
		ErrorLog:          httpErrorLog,
	}

	var err error
	s.Addrs.Metrics, err = s.setupServer(metricsServer)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.HTTP,
		Handler:           router,
		ErrorLog:          httpErrorLog,
	}
	s.Addrs.HTTP, err = s.setupServer(httpServer)
	if err != nil {
		return err
	}
	return nil
}

func (s *Server) setupServer(server *http.Server) (net.Addr, error) {
	if server.Addr == "" {
		server.Addr = "127.0.0.1:"
	}
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	logging.Infof("listening on %s", l.Addr().String())

	s.routines = append(s.routines, routine{
		run: func() error {
			err := server.Serve(l)
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		stop: func() {
			_ = server.Close()
		},
	})
	return l.Addr(), nil
}

type routine struct {
	run  func() error
	stop func()
}
