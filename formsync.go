package formsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-formsync/adapters/gojob"
	"github.com/goliatone/go-formsync/adapters/gologger"
	"github.com/goliatone/go-formsync/adapters/goredis"
	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/oauth"
	"github.com/goliatone/go-formsync/ratelimit"
	"github.com/goliatone/go-formsync/recordstore"
	"github.com/goliatone/go-formsync/security"
	syncproc "github.com/goliatone/go-formsync/sync"
	"github.com/goliatone/go-formsync/transport"
	"github.com/goliatone/go-formsync/webhooks"
	redis "github.com/redis/go-redis/v9"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type CredentialStore = core.CredentialStore
type SubscriptionStore = core.SubscriptionStore
type FormStore = core.FormStore
type SubmissionStore = core.SubmissionStore
type KeyLocker = core.KeyLocker

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithOAuthStateStore    = core.WithOAuthStateStore
	WithFormValidator      = core.WithFormValidator
	WithClock              = core.WithClock
	WithServiceKeyLocker   = core.WithKeyLocker
	WithServiceRecordStore = core.WithRecordStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Stores are the persistence dependencies of a runtime.
type Stores struct {
	Credentials   CredentialStore
	Subscriptions SubscriptionStore
	Forms         FormStore
	Submissions   SubmissionStore
}

func (s Stores) validate() error {
	missing := []string{}
	if s.Credentials == nil {
		missing = append(missing, "credentials")
	}
	if s.Subscriptions == nil {
		missing = append(missing, "subscriptions")
	}
	if s.Forms == nil {
		missing = append(missing, "forms")
	}
	if s.Submissions == nil {
		missing = append(missing, "submissions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("formsync: missing stores: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Runtime is a fully wired formsync process: the service, its upstream
// clients and the notification pipeline.
type Runtime struct {
	Config         Config
	Service        *Service
	OAuth          *oauth.Manager
	API            *recordstore.API
	Processor      *syncproc.Processor
	Queue          *webhooks.Queue
	Worker         *webhooks.Worker
	Receiver       *webhooks.Receiver
	Locker         KeyLocker
	LoggerProvider core.LoggerProvider
	Logger         core.Logger

	redis *redis.Client
}

type SetupOption func(*setupOptions)

type setupOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	locker         KeyLocker
	httpClient     *http.Client
	rateLimits     ratelimit.StateStore
	notifications  webhooks.NotificationHandler
	serviceOpts    []Option
}

func WithSetupLogger(logger core.Logger) SetupOption {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

func WithSetupLoggerProvider(provider core.LoggerProvider) SetupOption {
	return func(o *setupOptions) {
		o.loggerProvider = provider
	}
}

// WithKeyLocker overrides the locker. Without it Setup uses Redis when
// redis.addr is configured and an in-process locker otherwise.
func WithKeyLocker(locker KeyLocker) SetupOption {
	return func(o *setupOptions) {
		o.locker = locker
	}
}

func WithHTTPClient(client *http.Client) SetupOption {
	return func(o *setupOptions) {
		o.httpClient = client
	}
}

func WithRateLimitStore(store ratelimit.StateStore) SetupOption {
	return func(o *setupOptions) {
		o.rateLimits = store
	}
}

// WithNotificationHandler routes received notifications through handler
// instead of the service, for example through the command bus.
func WithNotificationHandler(handler webhooks.NotificationHandler) SetupOption {
	return func(o *setupOptions) {
		o.notifications = handler
	}
}

func WithServiceOptions(opts ...Option) SetupOption {
	return func(o *setupOptions) {
		o.serviceOpts = append(o.serviceOpts, opts...)
	}
}

// Setup wires a Runtime from cfg and stores.
func Setup(cfg Config, stores Stores, opts ...SetupOption) (*Runtime, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loggers := gologger.ResolveForJob(options.loggerProvider, options.logger)
	rt := &Runtime{
		Config:         cfg,
		LoggerProvider: loggers.Provider,
		Logger:         loggers.Logger,
	}

	rt.Locker = options.locker
	if rt.Locker == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		rt.redis = goredis.NewClient(cfg.Redis)
		rt.Locker = goredis.NewLocker(rt.redis)
	}
	if rt.Locker == nil {
		rt.Locker = core.NewMemoryKeyLocker()
	}

	oauthCfg := oauth.ConfigFromCore(cfg)
	oauthCfg.HTTPClient = options.httpClient
	oauthCfg.Logger = gologger.Component(rt.LoggerProvider, "oauth")
	manager, err := oauth.NewManager(oauthCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.OAuth = manager

	var doer transport.HTTPDoer
	if options.httpClient != nil {
		doer = options.httpClient
	}
	client, err := recordstore.NewClient(
		transport.NewRESTAdapter(doer),
		manager,
		stores.Credentials,
		recordstore.WithKeyLocker(rt.Locker),
		recordstore.WithRefreshSkew(cfg.RefreshSkew()),
		recordstore.WithRequestTimeout(cfg.RequestTimeout()),
		recordstore.WithRateLimiter(ratelimit.NewAdaptivePolicy(options.rateLimits)),
		recordstore.WithLogger(gologger.Component(rt.LoggerProvider, "recordstore")),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.API = recordstore.NewAPI(client, cfg.API.BaseURL)

	rt.Queue = webhooks.NewQueue(cfg.Webhooks.QueueSize)
	rt.Queue.Logger = gologger.Component(rt.LoggerProvider, "webhooks")

	serviceOpts := []Option{
		core.WithLoggerProvider(rt.LoggerProvider),
		core.WithLogger(rt.Logger),
		core.WithTokenManager(manager),
		core.WithRecordStore(rt.API),
		core.WithCredentialStore(stores.Credentials),
		core.WithSubscriptionStore(stores.Subscriptions),
		core.WithFormStore(stores.Forms),
		core.WithSubmissionStore(stores.Submissions),
		core.WithNotificationDispatcher(gojob.NewDispatcher(rt.Queue)),
		core.WithKeyLocker(rt.Locker),
	}
	service, err := core.NewService(cfg, append(serviceOpts, options.serviceOpts...)...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = service

	processor := syncproc.NewProcessor(stores.Subscriptions, stores.Credentials, stores.Forms, stores.Submissions, rt.API)
	processor.Locker = rt.Locker
	processor.LockTTL = cfg.SyncLockTTL()
	if cfg.Sync.MaxPages > 0 {
		processor.MaxPages = cfg.Sync.MaxPages
	}
	processor.Logger = gologger.Component(rt.LoggerProvider, "sync")
	rt.Processor = processor

	workerLogger := gologger.Component(rt.LoggerProvider, "webhooks")
	rt.Worker = webhooks.NewWorker(rt.Queue, func(ctx context.Context, subscriptionID string) error {
		_, err := processor.Process(ctx, subscriptionID)
		return err
	})
	rt.Worker.Hook = gojob.LoggingHook{Logger: workerLogger}
	rt.Worker.Logger = workerLogger
	if cfg.Webhooks.Workers > 0 {
		rt.Worker.Concurrency = cfg.Webhooks.Workers
	}

	var verifier *webhooks.MACVerifier
	if cfg.Webhooks.VerifyMAC {
		verifier = webhooks.NewMACVerifier(stores.Subscriptions)
	}
	var handler webhooks.NotificationHandler = service
	if options.notifications != nil {
		handler = options.notifications
	}
	rt.Receiver = webhooks.NewReceiver(handler, verifier, workerLogger)

	return rt, nil
}

// Run drains the notification queue until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil || r.Worker == nil {
		return fmt.Errorf("formsync: runtime is not set up")
	}
	return r.Worker.Run(ctx)
}

// Close stops the queue and releases the Redis connection, if any.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Queue != nil {
		r.Queue.Close()
	}
	if r.redis != nil {
		err := r.redis.Close()
		r.redis = nil
		return err
	}
	return nil
}

// NewSecretProvider returns the sealing provider for security.app_key, or
// nil when no key is configured and tokens are stored unsealed.
func NewSecretProvider(cfg Config) (core.SecretProvider, error) {
	key := strings.TrimSpace(cfg.Security.AppKey)
	if key == "" {
		return nil, nil
	}
	provider, err := security.NewAppKeySecretProviderFromString(key)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
