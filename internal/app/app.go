// Package app builds the process-scoped services once at startup and hands
// them to the commands.
package app

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/fieldscan/fieldscan/internal/auth"
	"github.com/fieldscan/fieldscan/internal/backend"
	"github.com/fieldscan/fieldscan/internal/buildinfo"
	"github.com/fieldscan/fieldscan/internal/classifier"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/connectivity"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/httpclient"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability"
	"github.com/fieldscan/fieldscan/internal/offline"
	"github.com/fieldscan/fieldscan/internal/scanner"
	"github.com/fieldscan/fieldscan/internal/voice"
)

const sentryFlushTimeout = 2 * time.Second

// App holds every long-lived service
type App struct {
	Settings   *conf.Settings
	Build      *buildinfo.Context
	Log        logger.Logger
	Metrics    *observability.Metrics
	HTTP       *httpclient.Client
	Auth       *auth.Manager
	Backend    *backend.Client
	Store      *datastore.SQLiteStore
	Offline    *offline.Manager
	Monitor    *connectivity.Monitor
	Classifier *classifier.Classifier
	Voice      *voice.Extractor
	Scanner    *scanner.Pipeline

	central   *logger.CentralLogger
	sentry    bool
	autoDrain atomic.Bool
}

// New wires the services. The caller must Close the returned App.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) (*App, error) {
	if build == nil {
		build = buildinfo.NewContext("", "", "")
	}
	a := &App{Settings: settings, Build: build}

	if err := a.initLogging(); err != nil {
		return nil, err
	}
	a.initTelemetry()

	m, err := observability.NewMetrics()
	if err != nil {
		a.Close()
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}
	a.Metrics = m

	a.HTTP = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.Backend.Timeout,
		UserAgent:      build.UserAgent(settings.Backend.UserAgent),
	})
	a.HTTP.SetAfterResponseHook(func(req *http.Request, resp *http.Response, _ error, elapsed time.Duration) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		a.Metrics.Backend.RecordRequest(req.Method, status, elapsed)
	})

	a.Auth = auth.NewManager(
		auth.NewFileStore(settings.Auth.CredentialPath, settings.Auth.Passphrase),
		auth.NewHTTPExchanger(settings.Backend.BaseURL, a.HTTP),
		settings.Auth.RefreshLeeway,
		logger.Global().Module("auth"))

	a.Backend = backend.New(backend.Config{
		BaseURL:              settings.Backend.BaseURL,
		MinutesPerCheckpoint: settings.Backend.MinutesPerCheckpoint,
		CatalogueTTL:         settings.Cache.CatalogueTTL,
		ProbePath:            settings.Connectivity.ProbePath,
	}, a.HTTP, a.Auth, logger.Global().Module("backend"))

	a.Store = datastore.NewSQLiteStore(settings.Store.Path, logger.Global().Module("datastore"))
	if err := a.Store.Open(); err != nil {
		a.Close()
		return nil, err
	}

	a.Monitor = connectivity.NewMonitor(a.Backend, connectivity.Config{
		Interval: settings.Connectivity.ProbeInterval,
		Timeout:  settings.Connectivity.ProbeTimeout,
	}, connectivity.WithReconnectHook(a.onReconnect))
	a.Monitor.OnChange(func(s connectivity.Status) {
		a.Metrics.Sync.SetReachable(s.Reachable)
	})

	a.Offline, err = offline.NewManager(ctx, a.Store, a.Backend, offline.Options{
		ChecklistTTL: settings.Cache.ChecklistTTL,
		Reachability: a.Monitor,
		Recorder:     a.Metrics.Sync,
		Logger:       logger.Global().Module("offline"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Classifier = classifier.New(equipment.DefaultTable(),
		classifier.WithRecorder(a.Metrics.Recognition),
		classifier.WithLogger(logger.Global().Module("classifier")))
	a.Voice = voice.NewExtractor()
	// recognizers are supplied by the capture frontend; the pipeline is
	// used here for candidate classification and thresholding
	a.Scanner = scanner.NewPipeline(a.Classifier, nil,
		scanner.WithThreshold(settings.Recognition.Threshold),
		scanner.WithLogger(logger.Global().Module("scanner")))

	a.Log.Debug("services initialized",
		logger.String("version", build.GetVersion()),
		logger.String("store", settings.Store.Path),
		logger.String("backend", settings.Backend.BaseURL))
	return a, nil
}

func (a *App) initLogging() error {
	cfg := a.Settings.Logging
	if a.Settings.Debug {
		cfg.DefaultLevel = "debug"
	}
	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}
	logger.SetGlobal(central)
	a.central = central
	a.Log = central.Module("app")
	return nil
}

func (a *App) initTelemetry() {
	dsn := a.Settings.Telemetry.SentryDSN
	if dsn == "" {
		return
	}

	deviceID, err := buildinfo.LoadOrCreateDeviceID(filepath.Dir(a.Settings.Store.Path))
	if err != nil {
		a.Log.Warn("device id unavailable", logger.Error(err))
	}
	if a.Build.DeviceID == "" {
		a.Build.DeviceID = deviceID
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      a.Settings.Telemetry.Environment,
		ServerName:       "",
		Release:          a.Build.Release(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.Message = logger.RedactSensitiveData(event.Message)
			event.User = sentry.User{ID: a.Build.GetDeviceID()}
			event.ServerName = ""
			event.Request = nil
			return event
		},
	})
	if err != nil {
		a.Log.Warn("sentry initialization failed", logger.Error(err))
		return
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	a.sentry = true
	a.Log.Info("error reporting enabled", logger.String("environment", a.Settings.Telemetry.Environment))
}

// Authenticate runs the startup silent refresh. A device that never logged
// in is not an error; an expired session is logged and returned.
func (a *App) Authenticate(ctx context.Context) error {
	err := a.Auth.SilentRefresh(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrNoCredentials):
		a.Log.Info("not logged in; submissions will be queued")
		return nil
	case errors.Is(err, auth.ErrReauthenticationRequired):
		a.Log.Warn("session expired, log in again")
		return err
	default:
		a.Log.Warn("silent refresh failed, keeping stored session", logger.Error(err))
		return nil
	}
}

// EnableAutoDrain makes every reconnect drain the pending queue
func (a *App) EnableAutoDrain() {
	a.autoDrain.Store(true)
}

func (a *App) onReconnect(ctx context.Context) {
	if !a.autoDrain.Load() {
		return
	}
	report, err := a.Offline.DrainQueue(ctx)
	if err != nil {
		a.Log.Warn("queue drain after reconnect failed", logger.Error(err))
		return
	}
	if report.Skipped {
		a.Log.Debug("queue drain already running")
	}
}

// Close releases resources in reverse order of creation
func (a *App) Close() {
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("failed to close store", logger.Error(err))
		}
	}
	if a.HTTP != nil {
		a.HTTP.Close()
	}
	if a.sentry {
		errors.SetTelemetryReporter(nil)
		sentry.Flush(sentryFlushTimeout)
	}
	if a.central != nil {
		_ = a.central.Close()
	}
}
