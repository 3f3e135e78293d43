package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	oauthStateStore OAuthStateStore
	tokenManager    TokenManager
	recordStore     RecordStoreAPI
	credentials     CredentialStore
	subscriptions   SubscriptionStore
	forms           FormStore
	submissions     SubmissionStore
	dispatcher      NotificationDispatcher
	formValidator   FormValidator
	keyLocker       KeyLocker
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithOAuthStateStore(store OAuthStateStore) Option {
	return func(b *serviceBuilder) {
		b.oauthStateStore = store
	}
}

func WithTokenManager(manager TokenManager) Option {
	return func(b *serviceBuilder) {
		b.tokenManager = manager
	}
}

func WithRecordStore(api RecordStoreAPI) Option {
	return func(b *serviceBuilder) {
		b.recordStore = api
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentials = store
	}
}

func WithSubscriptionStore(store SubscriptionStore) Option {
	return func(b *serviceBuilder) {
		b.subscriptions = store
	}
}

func WithFormStore(store FormStore) Option {
	return func(b *serviceBuilder) {
		b.forms = store
	}
}

func WithSubmissionStore(store SubmissionStore) Option {
	return func(b *serviceBuilder) {
		b.submissions = store
	}
}

func WithNotificationDispatcher(dispatcher NotificationDispatcher) Option {
	return func(b *serviceBuilder) {
		b.dispatcher = dispatcher
	}
}

func WithFormValidator(validator FormValidator) Option {
	return func(b *serviceBuilder) {
		b.formValidator = validator
	}
}

// WithKeyLocker sets the locker that serializes webhook registration per
// owner and base.
func WithKeyLocker(locker KeyLocker) Option {
	return func(b *serviceBuilder) {
		b.keyLocker = locker
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("formsync", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// StaticRawConfigLoader serves a fixed map of raw settings.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveConfig loads raw settings through cfgx and layers them over the
// defaults and runtime overrides with go-options.
func ResolveConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded, err := NewCfgxConfigProvider(loader).Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

type layer struct {
	values      map[string]any
	includeZero bool
}

func (l layer) str(key string, value string) {
	if l.includeZero || strings.TrimSpace(value) != "" {
		l.values[key] = value
	}
}

func (l layer) num(key string, value int) {
	if l.includeZero || value != 0 {
		l.values[key] = value
	}
}

func (l layer) flag(key string, value bool) {
	if l.includeZero || value {
		l.values[key] = value
	}
}

func (l layer) list(key string, value []string) {
	if l.includeZero || len(value) > 0 {
		l.values[key] = append([]string(nil), value...)
	}
}

func (l layer) section(parent map[string]any, key string) {
	if len(l.values) > 0 {
		parent[key] = l.values
	}
}

func newLayer(includeZero bool) layer {
	return layer{values: map[string]any{}, includeZero: includeZero}
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	out := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		out["service_name"] = cfg.ServiceName
	}

	oauth := newLayer(includeZero)
	oauth.str("authorize_url", cfg.OAuth.AuthorizeURL)
	oauth.str("token_url", cfg.OAuth.TokenURL)
	oauth.str("client_id", cfg.OAuth.ClientID)
	oauth.str("client_secret", cfg.OAuth.ClientSecret)
	oauth.str("redirect_uri", cfg.OAuth.RedirectURI)
	oauth.list("scopes", cfg.OAuth.Scopes)
	oauth.num("state_ttl_seconds", cfg.OAuth.StateTTLSeconds)
	oauth.num("verifier_cookie_ttl_seconds", cfg.OAuth.VerifierCookieTTLSeconds)
	oauth.flag("server_state", cfg.OAuth.ServerState)
	oauth.section(out, "oauth")

	api := newLayer(includeZero)
	api.str("base_url", cfg.API.BaseURL)
	api.num("request_timeout_seconds", cfg.API.RequestTimeoutSeconds)
	api.num("refresh_skew_seconds", cfg.API.RefreshSkewSeconds)
	api.section(out, "api")

	webhooks := newLayer(includeZero)
	webhooks.str("public_url", cfg.Webhooks.PublicURL)
	webhooks.str("path", cfg.Webhooks.Path)
	webhooks.num("queue_size", cfg.Webhooks.QueueSize)
	webhooks.num("workers", cfg.Webhooks.Workers)
	webhooks.flag("verify_mac", cfg.Webhooks.VerifyMAC)
	webhooks.section(out, "webhooks")

	sync := newLayer(includeZero)
	sync.num("max_pages", cfg.Sync.MaxPages)
	sync.num("lock_ttl_seconds", cfg.Sync.LockTTLSeconds)
	sync.section(out, "sync")

	httpLayer := newLayer(includeZero)
	httpLayer.str("address", cfg.HTTP.Address)
	httpLayer.str("frontend_url", cfg.HTTP.FrontendURL)
	httpLayer.str("session_secret", cfg.HTTP.SessionSecret)
	httpLayer.num("session_ttl_seconds", cfg.HTTP.SessionTTLSeconds)
	httpLayer.section(out, "http")

	database := newLayer(includeZero)
	database.str("driver", cfg.Database.Driver)
	database.str("dsn", cfg.Database.DSN)
	database.flag("debug", cfg.Database.Debug)
	database.section(out, "database")

	redis := newLayer(includeZero)
	redis.str("addr", cfg.Redis.Addr)
	redis.str("password", cfg.Redis.Password)
	redis.num("db", cfg.Redis.DB)
	redis.section(out, "redis")

	security := newLayer(includeZero)
	security.str("app_key", cfg.Security.AppKey)
	security.section(out, "security")

	return out
}
