package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.values), nil
}

type stubTokenManager struct {
	grant     TokenGrant
	err       error
	exchanged []string
}

func (m *stubTokenManager) NewPKCE() (PKCE, error) {
	return PKCE{Verifier: "verifier_1", Challenge: "challenge_1", Method: "S256"}, nil
}

func (m *stubTokenManager) AuthorizationURL(state string, codeChallenge string) string {
	return "https://auth.example/authorize?state=" + state + "&code_challenge=" + codeChallenge
}

func (m *stubTokenManager) ExchangeAuthorizationCode(_ context.Context, code string, verifier string) (TokenGrant, error) {
	m.exchanged = append(m.exchanged, code+"|"+verifier)
	if m.err != nil {
		return TokenGrant{}, m.err
	}
	return m.grant, nil
}

type stubRecordStore struct {
	mu            sync.Mutex
	profile       Profile
	createErr     error
	webhookErr    error
	records       []map[string]any
	webhookCalls  int
	nextRecordID  int
	registrations map[string]WebhookRegistration
}

func newStubRecordStore() *stubRecordStore {
	return &stubRecordStore{
		profile:       Profile{ID: "usr_ext_1", Email: "owner@example.com"},
		registrations: map[string]WebhookRegistration{},
	}
}

func (s *stubRecordStore) WhoAmI(context.Context, string) (Profile, error) {
	return s.profile, nil
}

func (s *stubRecordStore) ListBases(context.Context, CredentialRecord) ([]Base, error) {
	return []Base{{ID: "app1", Name: "Base"}}, nil
}

func (s *stubRecordStore) ListTables(context.Context, CredentialRecord, string) ([]Table, error) {
	return []Table{{ID: "tbl1", Name: "Table"}}, nil
}

func (s *stubRecordStore) ListFields(context.Context, CredentialRecord, string, string) ([]Field, error) {
	return []Field{{ID: "fld1", Name: "Name", Type: "singleLineText"}}, nil
}

func (s *stubRecordStore) CreateRecord(_ context.Context, _ CredentialRecord, _ string, _ string, fields map[string]any) (ExternalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return ExternalRecord{}, s.createErr
	}
	s.nextRecordID++
	s.records = append(s.records, copyAnyMap(fields))
	return ExternalRecord{ID: fmt.Sprintf("rec%d", s.nextRecordID), Fields: fields}, nil
}

func (s *stubRecordStore) CreateWebhook(_ context.Context, _ CredentialRecord, baseID string, _ string) (WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookCalls++
	if s.webhookErr != nil {
		return WebhookRegistration{}, s.webhookErr
	}
	registration := WebhookRegistration{ID: "ach_" + baseID, MACSecret: "c2VjcmV0"}
	s.registrations[baseID] = registration
	return registration, nil
}

func (s *stubRecordStore) ListWebhookPayloads(context.Context, CredentialRecord, string, string, int64) (PayloadPage, error) {
	return PayloadPage{}, nil
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	records map[string]CredentialRecord
}

func newMemoryCredentialStore(records ...CredentialRecord) *memoryCredentialStore {
	store := &memoryCredentialStore{records: map[string]CredentialRecord{}}
	for _, record := range records {
		store.records[record.ID] = record
	}
	return store
}

func (s *memoryCredentialStore) Get(_ context.Context, ownerUserID string) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[ownerUserID]
	if !ok {
		return CredentialRecord{}, NotFoundError("credential not found")
	}
	return record.Clone(), nil
}

func (s *memoryCredentialStore) GetByExternalUserID(_ context.Context, externalUserID string) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ExternalUserID == externalUserID {
			return record.Clone(), nil
		}
	}
	return CredentialRecord{}, NotFoundError("credential not found")
}

func (s *memoryCredentialStore) Upsert(_ context.Context, record CredentialRecord) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return record.Clone(), nil
}

func (s *memoryCredentialStore) UpdateTokens(_ context.Context, record CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

type memorySubscriptionStore struct {
	mu    sync.Mutex
	items map[string]WebhookSubscription
}

func newMemorySubscriptionStore() *memorySubscriptionStore {
	return &memorySubscriptionStore{items: map[string]WebhookSubscription{}}
}

func (s *memorySubscriptionStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[subscriptionID]
	if !ok {
		return WebhookSubscription{}, NotFoundError("subscription not found")
	}
	return item, nil
}

func (s *memorySubscriptionStore) FindByOwnerAndBase(_ context.Context, ownerUserID string, baseID string) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.OwnerUserID == ownerUserID && item.BaseID == baseID {
			return item, nil
		}
	}
	return WebhookSubscription{}, NotFoundError("subscription not found")
}

func (s *memorySubscriptionStore) Create(_ context.Context, subscription WebhookSubscription) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[subscription.SubscriptionID] = subscription
	return subscription, nil
}

func (s *memorySubscriptionStore) AdvanceCursor(_ context.Context, subscriptionID string, cursor int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[subscriptionID]
	if !ok {
		return false, NotFoundError("subscription not found")
	}
	if cursor <= item.Cursor {
		return false, nil
	}
	item.Cursor = cursor
	s.items[subscriptionID] = item
	return true, nil
}

type memoryFormStore struct {
	mu    sync.Mutex
	forms map[string]Form
}

func newMemoryFormStore(forms ...Form) *memoryFormStore {
	store := &memoryFormStore{forms: map[string]Form{}}
	for _, form := range forms {
		store.forms[form.ID] = form
	}
	return store
}

func (s *memoryFormStore) Create(_ context.Context, form Form) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[form.ID] = form
	return form, nil
}

func (s *memoryFormStore) Get(_ context.Context, formID string) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	form, ok := s.forms[formID]
	if !ok {
		return Form{}, NotFoundError("form not found")
	}
	return form, nil
}

func (s *memoryFormStore) ListByOwner(_ context.Context, ownerUserID string) ([]Form, error) {
	return s.filter(func(form Form) bool { return form.OwnerUserID == ownerUserID }), nil
}

func (s *memoryFormStore) ListByBase(_ context.Context, baseID string) ([]Form, error) {
	return s.filter(func(form Form) bool { return form.BaseID == baseID }), nil
}

func (s *memoryFormStore) filter(match func(Form) bool) []Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Form{}
	for _, form := range s.forms {
		if match(form) {
			out = append(out, form)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memorySubmissionStore struct {
	mu    sync.Mutex
	items []Submission
}

func (s *memorySubmissionStore) Create(_ context.Context, submission Submission) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, submission)
	return submission, nil
}

func (s *memorySubmissionStore) ListByForm(_ context.Context, formID string) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Submission{}
	for _, item := range s.items {
		if item.FormID == formID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memorySubmissionStore) MarkDeleted(_ context.Context, externalRecordIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, id := range externalRecordIDs {
		for index := range s.items {
			if s.items[index].ExternalRecordID == id && !s.items[index].DeletedInExternalStore {
				s.items[index].DeletedInExternalStore = true
				changed++
			}
		}
	}
	return changed, nil
}

func (s *memorySubmissionStore) MergeAnswers(_ context.Context, formID string, externalRecordID string, answers map[string]any, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index := range s.items {
		item := &s.items[index]
		if item.FormID != formID || item.ExternalRecordID != externalRecordID {
			continue
		}
		if item.Answers == nil {
			item.Answers = map[string]any{}
		}
		for key, value := range answers {
			item.Answers[key] = value
		}
		stamp := at
		item.ExternalUpdatedAt = &stamp
		return true, nil
	}
	return false, nil
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, subscriptionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, subscriptionID)
	return nil
}

type serviceFixture struct {
	svc           *Service
	tokens        *stubTokenManager
	api           *stubRecordStore
	credentials   *memoryCredentialStore
	subscriptions *memorySubscriptionStore
	forms         *memoryFormStore
	submissions   *memorySubmissionStore
	dispatcher    *recordingDispatcher
}

func newServiceFixture(cfg Config, opts ...Option) (*serviceFixture, error) {
	fixture := &serviceFixture{
		tokens: &stubTokenManager{grant: TokenGrant{
			AccessToken:  "access_1",
			RefreshToken: "refresh_1",
			ExpiresIn:    time.Hour,
			Scopes:       []string{"data.records:write"},
		}},
		api: newStubRecordStore(),
		credentials: newMemoryCredentialStore(CredentialRecord{
			ID:             "owner_1",
			ExternalUserID: "usr_ext_owner",
			AccessToken:    "access_owner",
			RefreshToken:   "refresh_owner",
			TokenExpiresAt: time.Now().UTC().Add(time.Hour),
		}),
		subscriptions: newMemorySubscriptionStore(),
		forms:         newMemoryFormStore(),
		submissions:   &memorySubmissionStore{},
		dispatcher:    &recordingDispatcher{},
	}
	options := []Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithTokenManager(fixture.tokens),
		WithRecordStore(fixture.api),
		WithCredentialStore(fixture.credentials),
		WithSubscriptionStore(fixture.subscriptions),
		WithFormStore(fixture.forms),
		WithSubmissionStore(fixture.submissions),
		WithNotificationDispatcher(fixture.dispatcher),
	}
	svc, err := NewService(cfg, append(options, opts...)...)
	if err != nil {
		return nil, err
	}
	fixture.svc = svc
	return fixture, nil
}
