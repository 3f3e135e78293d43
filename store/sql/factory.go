package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-formsync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db           *bun.DB
	secrets      core.SecretProvider
	cacheService repositorycache.CacheService

	credentialStore   *CredentialStore
	subscriptionStore *SubscriptionStore
	formStore         core.FormStore
	submissionStore   *SubmissionStore
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider seals credential tokens and webhook MAC secrets.
func WithSecretProvider(provider core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = provider
	}
}

// WithFormCache puts form reads behind cacheService.
func WithFormCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (*RepositoryFactory, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.formStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) FormStore() core.FormStore {
	if f == nil {
		return nil
	}
	return f.formStore
}

func (f *RepositoryFactory) SubmissionStore() core.SubmissionStore {
	if f == nil {
		return nil
	}
	return f.submissionStore
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	subscriptionStore, err := NewSubscriptionStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	formStore, err := NewFormStore(f.db)
	if err != nil {
		return err
	}
	submissionStore, err := NewSubmissionStore(f.db)
	if err != nil {
		return err
	}

	f.credentialStore = credentialStore
	f.subscriptionStore = subscriptionStore
	f.submissionStore = submissionStore
	f.formStore = formStore
	if f.cacheService != nil {
		cached, cacheErr := NewCachedFormStore(formStore, f.cacheService)
		if cacheErr != nil {
			return cacheErr
		}
		f.formStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
