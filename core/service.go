package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service orchestrates forms, submissions, the OAuth connect flow and
// webhook intake on top of the configured stores and upstream clients.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
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

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("formsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("formsync.service"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.keyLocker == nil {
		builder.keyLocker = NewMemoryKeyLocker()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.oauthStateStore == nil && finalConfig.OAuth.ServerState {
		builder.oauthStateStore = NewMemoryOAuthStateStore(finalConfig.StateTTL())
	}
	if builder.formValidator == nil {
		validator, err := NewSchemaFormValidator()
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		builder.formValidator = validator
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		oauthStateStore: builder.oauthStateStore,
		tokenManager:    builder.tokenManager,
		recordStore:     builder.recordStore,
		credentials:     builder.credentials,
		subscriptions:   builder.subscriptions,
		forms:           builder.forms,
		submissions:     builder.submissions,
		dispatcher:      builder.dispatcher,
		formValidator:   builder.formValidator,
		keyLocker:       builder.keyLocker,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) requireDependency(ok bool, name string) error {
	if ok {
		return nil
	}
	return InternalError(fmt.Sprintf("core: %s is not configured", name), nil)
}
