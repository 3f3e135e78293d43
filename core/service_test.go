package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-formsync/rules"
)

func publicConfig() Config {
	cfg := Config{}
	cfg.Webhooks.PublicURL = "https://forms.example"
	return cfg
}

func contactFormInput() FormInput {
	return FormInput{
		BaseID:  "app1",
		TableID: "tbl1",
		Title:   "Contact",
		Questions: []Question{
			{QuestionKey: "name", FieldID: "fldName", Label: "Name", Type: "singleLineText", Required: true},
			{QuestionKey: "role", FieldID: "fldRole", Label: "Role", Type: "singleSelect", Options: []string{"Engineer", "Other"}},
			{
				QuestionKey: "github",
				FieldID:     "fldGithub",
				Label:       "GitHub",
				Type:        "url",
				Required:    true,
				Visibility: &rules.RuleSet{Rules: []rules.Rule{
					{DependsOn: "role", Operator: rules.OperatorEquals, Value: "Engineer"},
				}},
			},
		},
	}
}

func TestNewService_DefaultConfig(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.Config().ServiceName; got != "formsync" {
		t.Fatalf("expected default service name formsync, got %q", got)
	}
	if got := svc.Config().API.BaseURL; got != DefaultAPIBaseURL {
		t.Fatalf("expected default api base url, got %q", got)
	}
	if svc.Logger() == nil {
		t.Fatalf("expected default logger")
	}
}

func TestService_CallbackWithoutVerifierNeedsServerState(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	redirect, err := fixture.svc.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err = fixture.svc.CompleteCallback(ctx, CallbackRequest{Code: "code_1", State: redirect.State})
	if err == nil || !strings.Contains(err.Error(), "code verifier is required") {
		t.Fatalf("expected missing verifier to be rejected without server state, got %v", err)
	}
	if len(fixture.tokens.exchanged) != 0 {
		t.Fatalf("expected no token exchange, got %v", fixture.tokens.exchanged)
	}
}

func TestService_ConnectStoresVerifierByState(t *testing.T) {
	cfg := Config{}
	cfg.OAuth.ServerState = true
	fixture, err := newServiceFixture(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	redirect, err := fixture.svc.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if redirect.State == "" || !strings.Contains(redirect.URL, "state="+redirect.State) {
		t.Fatalf("expected state in authorization url, got %+v", redirect)
	}
	if redirect.CodeVerifier != "verifier_1" {
		t.Fatalf("expected verifier to be returned, got %q", redirect.CodeVerifier)
	}

	result, err := fixture.svc.CompleteCallback(ctx, CallbackRequest{Code: "code_1", State: redirect.State})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if got := fixture.tokens.exchanged; len(got) != 1 || got[0] != "code_1|verifier_1" {
		t.Fatalf("expected exchange with stored verifier, got %v", got)
	}
	if !result.Created {
		t.Fatalf("expected a new credential record")
	}
}

func TestService_CompleteCallbackPassesUpstreamErrorCode(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = fixture.svc.CompleteCallback(context.Background(), CallbackRequest{
		Error:            "access_denied",
		ErrorDescription: "user cancelled",
	})
	if !IsUpstreamAuth(err) {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
	if got := UpstreamCode(err); got != "access_denied" {
		t.Fatalf("expected upstream code access_denied, got %q", got)
	}
	if len(fixture.tokens.exchanged) != 0 {
		t.Fatalf("expected no token exchange")
	}
}

func TestService_CompleteCallbackRequiresCodeAndVerifier(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := fixture.svc.CompleteCallback(ctx, CallbackRequest{}); err == nil {
		t.Fatalf("expected missing code error")
	}
	_, err = fixture.svc.CompleteCallback(ctx, CallbackRequest{Code: "code_1"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input for missing verifier, got %v", err)
	}
}

func TestService_CompleteCallbackUpdatesExistingCredential(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.api.profile = Profile{ID: "usr_ext_owner", Email: "new@example.com"}
	fixture.tokens.grant.RefreshToken = ""

	result, err := fixture.svc.CompleteCallback(context.Background(), CallbackRequest{
		Code:         "code_2",
		CodeVerifier: "cookie_verifier",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Created {
		t.Fatalf("expected the existing credential to be reused")
	}
	if result.Credential.ID != "owner_1" {
		t.Fatalf("expected owner_1, got %q", result.Credential.ID)
	}
	if result.Credential.AccessToken != "access_1" {
		t.Fatalf("expected new access token, got %q", result.Credential.AccessToken)
	}
	if result.Credential.RefreshToken != "refresh_owner" {
		t.Fatalf("expected refresh token to be kept when not rotated, got %q", result.Credential.RefreshToken)
	}
	if result.Credential.Email != "new@example.com" || result.Credential.LastLogin == nil {
		t.Fatalf("expected profile fields to be refreshed, got %+v", result.Credential)
	}
}

func TestService_CreateFormRegistersWebhookOnce(t *testing.T) {
	fixture, err := newServiceFixture(publicConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	first, err := fixture.svc.CreateForm(ctx, "owner_1", contactFormInput())
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if first.ID == "" || first.OwnerUserID != "owner_1" {
		t.Fatalf("expected stored form with owner, got %+v", first)
	}
	if _, err := fixture.svc.CreateForm(ctx, "owner_1", contactFormInput()); err != nil {
		t.Fatalf("create second form: %v", err)
	}
	if fixture.api.webhookCalls != 1 {
		t.Fatalf("expected a single webhook registration, got %d", fixture.api.webhookCalls)
	}
	subscription, err := fixture.subscriptions.FindByOwnerAndBase(ctx, "owner_1", "app1")
	if err != nil {
		t.Fatalf("find subscription: %v", err)
	}
	if subscription.SubscriptionID != "ach_app1" || subscription.Cursor != 0 {
		t.Fatalf("unexpected subscription %+v", subscription)
	}
}

func TestService_CreateFormSurvivesWebhookFailure(t *testing.T) {
	fixture, err := newServiceFixture(publicConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.api.webhookErr = UpstreamTransientError("upstream down", nil)

	form, err := fixture.svc.CreateForm(context.Background(), "owner_1", contactFormInput())
	if err != nil {
		t.Fatalf("expected form creation to succeed, got %v", err)
	}
	if _, err := fixture.forms.Get(context.Background(), form.ID); err != nil {
		t.Fatalf("expected form to be stored: %v", err)
	}
}

func TestService_CreateFormRejectsInvalidDefinitions(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	missingTitle := contactFormInput()
	missingTitle.Title = ""
	if _, err := fixture.svc.CreateForm(ctx, "owner_1", missingTitle); !IsValidation(err) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}

	unknownDependency := contactFormInput()
	unknownDependency.Questions[2].Visibility.Rules[0].DependsOn = "missing"
	if _, err := fixture.svc.CreateForm(ctx, "owner_1", unknownDependency); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown dependency, got %v", err)
	}

	badOperator := contactFormInput()
	badOperator.Questions[2].Visibility.Rules[0].Operator = "matches"
	if _, err := fixture.svc.CreateForm(ctx, "owner_1", badOperator); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown operator, got %v", err)
	}
}

func TestService_SubmitFormFiltersHiddenQuestions(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	form, err := fixture.svc.CreateForm(ctx, "owner_1", contactFormInput())
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	submission, err := fixture.svc.SubmitForm(ctx, form.ID, map[string]any{
		"name":   "Ada",
		"role":   "Other",
		"github": "https://github.com/ada",
	})
	if err != nil {
		t.Fatalf("submit form: %v", err)
	}
	if _, ok := submission.Answers["github"]; ok {
		t.Fatalf("expected hidden answer to be dropped, got %v", submission.Answers)
	}
	if submission.ExternalRecordID != "rec1" {
		t.Fatalf("expected external record id rec1, got %q", submission.ExternalRecordID)
	}
	written := fixture.api.records[0]
	if written["fldName"] != "Ada" || written["fldRole"] != "Other" {
		t.Fatalf("expected answers keyed by field id, got %v", written)
	}
	if _, ok := written["fldGithub"]; ok {
		t.Fatalf("expected hidden field to be omitted, got %v", written)
	}
}

func TestService_SubmitFormRequiresVisibleQuestions(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	form, err := fixture.svc.CreateForm(ctx, "owner_1", contactFormInput())
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	_, err = fixture.svc.SubmitForm(ctx, form.ID, map[string]any{"name": "Ada", "role": "Engineer", "github": ""})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Field 'GitHub' is required.") {
		t.Fatalf("expected message naming the label, got %q", err.Error())
	}

	_, err = fixture.svc.SubmitForm(ctx, form.ID, map[string]any{"name": nil})
	if !IsValidation(err) {
		t.Fatalf("expected validation error for nil answer, got %v", err)
	}
	if len(fixture.api.records) != 0 {
		t.Fatalf("expected no external writes on validation failure")
	}
}

func TestService_SubmitFormForwardsEmptyOptionalAnswers(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	input := contactFormInput()
	input.Questions = append(input.Questions, Question{QuestionKey: "notes", FieldID: "fldNotes", Label: "Notes", Type: "multilineText"})
	form, err := fixture.svc.CreateForm(ctx, "owner_1", input)
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	submission, err := fixture.svc.SubmitForm(ctx, form.ID, map[string]any{"name": "Ada", "role": "", "notes": nil})
	if err != nil {
		t.Fatalf("submit form: %v", err)
	}
	if value, ok := submission.Answers["role"]; !ok || value != "" {
		t.Fatalf("expected empty role answer to be kept, got %v", submission.Answers)
	}
	if value, ok := submission.Answers["notes"]; !ok || value != nil {
		t.Fatalf("expected nil notes answer to be kept, got %v", submission.Answers)
	}
	written := fixture.api.records[0]
	if value, ok := written["fldRole"]; !ok || value != "" {
		t.Fatalf("expected empty role forwarded, got %v", written)
	}
	if value, ok := written["fldNotes"]; !ok || value != nil {
		t.Fatalf("expected nil notes forwarded, got %v", written)
	}
	if _, ok := written["fldGithub"]; ok {
		t.Fatalf("expected hidden field to be omitted, got %v", written)
	}
}

func TestService_SubmitFormUnknownFormOrOwner(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := fixture.svc.SubmitForm(ctx, "missing", map[string]any{}); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown form, got %v", err)
	}

	form, err := fixture.svc.CreateForm(ctx, "owner_2", contactFormInput())
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if _, err := fixture.svc.SubmitForm(ctx, form.ID, map[string]any{"name": "Ada"}); !IsNotFound(err) {
		t.Fatalf("expected not found for unconnected owner, got %v", err)
	}
}

func TestService_SubmitFormWrapsUpstreamFailure(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	form, err := fixture.svc.CreateForm(ctx, "owner_1", contactFormInput())
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	fixture.api.createErr = UpstreamTransientError("status 503", errors.New("unavailable"))

	_, err = fixture.svc.SubmitForm(ctx, form.ID, map[string]any{"name": "Ada"})
	if !IsUpstreamTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to save to Airtable") {
		t.Fatalf("expected wrapped message, got %q", err.Error())
	}
	submissions, _ := fixture.svc.ListSubmissions(ctx, form.ID)
	if len(submissions) != 0 {
		t.Fatalf("expected no local submission, got %d", len(submissions))
	}
}

func TestService_HandleNotification(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	ack, err := fixture.svc.HandleNotification(ctx, Notification{})
	if err != nil || !ack.Ping {
		t.Fatalf("expected ping ack, got %+v err=%v", ack, err)
	}

	ack, err = fixture.svc.HandleNotification(ctx, Notification{Webhook: NotificationRef{ID: "ach_1"}})
	if err != nil || !ack.Queued {
		t.Fatalf("expected queued ack, got %+v err=%v", ack, err)
	}
	if len(fixture.dispatcher.ids) != 1 || fixture.dispatcher.ids[0] != "ach_1" {
		t.Fatalf("expected dispatch for ach_1, got %v", fixture.dispatcher.ids)
	}

	fixture.dispatcher.err = errors.New("queue full")
	ack, err = fixture.svc.HandleNotification(ctx, Notification{Webhook: NotificationRef{ID: "ach_2"}})
	if err != nil {
		t.Fatalf("expected dispatch failures to be acknowledged, got %v", err)
	}
	if ack.Queued {
		t.Fatalf("expected ack without queueing")
	}
}

func TestService_SchemaBrowsingRequiresCredential(t *testing.T) {
	fixture, err := newServiceFixture(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	bases, err := fixture.svc.ListBases(ctx, "owner_1")
	if err != nil || len(bases) != 1 {
		t.Fatalf("expected bases, got %v err=%v", bases, err)
	}
	if _, err := fixture.svc.ListBases(ctx, "nobody"); !IsNotFound(err) {
		t.Fatalf("expected not found for missing credential, got %v", err)
	}
	if _, err := fixture.svc.ListFields(ctx, "owner_1", "app1", ""); err == nil {
		t.Fatalf("expected bad input for missing table id")
	}
}
