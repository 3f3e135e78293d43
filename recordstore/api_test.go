package recordstore

import (
	"context"
	"net/http"
	"testing"
)

func TestAPI_ListFieldsFiltersTypes(t *testing.T) {
	up, server := newUpstream(t, "access_1")
	up.handler = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tables":[{"id":"tbl1","name":"Leads","fields":[
			{"id":"fld1","name":"Name","type":"singleLineText"},
			{"id":"fld2","name":"Formula","type":"formula"},
			{"id":"fld3","name":"Tags","type":"multipleSelects"}
		]}]}`))
	}
	record := freshRecord("access_1")
	api := newTestAPI(t, server.URL, &stubRefresher{}, newMemoryCredentials(record))

	fields, err := api.ListFields(context.Background(), record, "app1", "tbl1")
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 2 || fields[0].ID != "fld1" || fields[1].ID != "fld3" {
		t.Fatalf("expected bindable fields only, got %+v", fields)
	}
	if _, err := api.ListFields(context.Background(), record, "app1", "tblMissing"); err == nil {
		t.Fatalf("expected missing table error")
	}
}

func TestAPI_CreateWebhookBody(t *testing.T) {
	up, server := newUpstream(t, "access_1")
	up.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bases/app1/webhooks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"ach1","macSecretBase64":"c2VjcmV0","expirationTime":"2026-10-25T12:00:00.000Z"}`))
	}
	record := freshRecord("access_1")
	api := newTestAPI(t, server.URL, &stubRefresher{}, newMemoryCredentials(record))

	registration, err := api.CreateWebhook(context.Background(), record, "app1", "https://forms.example/api/webhooks/airtable")
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	if registration.ID != "ach1" || registration.MACSecret != "c2VjcmV0" || registration.ExpirationTime == nil {
		t.Fatalf("unexpected registration %+v", registration)
	}
	if up.lastBody["notificationUrl"] != "https://forms.example/api/webhooks/airtable" {
		t.Fatalf("expected notification url in body, got %v", up.lastBody)
	}
	spec, _ := up.lastBody["specification"].(map[string]any)
	options, _ := spec["options"].(map[string]any)
	filters, _ := options["filters"].(map[string]any)
	dataTypes, _ := filters["dataTypes"].([]any)
	if len(dataTypes) != 1 || dataTypes[0] != "tableData" {
		t.Fatalf("expected tableData filter, got %v", up.lastBody)
	}
}

func TestAPI_ListWebhookPayloadsCursorQuery(t *testing.T) {
	up, server := newUpstream(t, "access_1")
	up.handler = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"cursor":9,"mightHaveMore":false,"payloads":[{"baseTransactionNumber":8,"changedTablesById":{"tbl1":{"destroyedRecordIds":["rec1"]}}}]}`))
	}
	record := freshRecord("access_1")
	api := newTestAPI(t, server.URL, &stubRefresher{}, newMemoryCredentials(record))

	page, err := api.ListWebhookPayloads(context.Background(), record, "app1", "ach1", 0)
	if err != nil {
		t.Fatalf("list payloads: %v", err)
	}
	if up.lastQuery != "" {
		t.Fatalf("expected no cursor query for zero cursor, got %q", up.lastQuery)
	}
	if page.Cursor != 9 || len(page.Payloads) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if ids := page.Payloads[0].ChangedTablesByID["tbl1"].DestroyedRecordIDs; len(ids) != 1 || ids[0] != "rec1" {
		t.Fatalf("expected destroyed record ids, got %v", ids)
	}

	if _, err := api.ListWebhookPayloads(context.Background(), record, "app1", "ach1", 9); err != nil {
		t.Fatalf("list payloads: %v", err)
	}
	if up.lastQuery != "cursor=9" {
		t.Fatalf("expected cursor query, got %q", up.lastQuery)
	}
}

func TestAPI_CreateRecordWrapsFields(t *testing.T) {
	up, server := newUpstream(t, "access_1")
	up.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app1/tbl1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"rec42","createdTime":"2026-10-18T12:00:00.000Z","fields":{"fld1":"Ada"}}`))
	}
	record := freshRecord("access_1")
	api := newTestAPI(t, server.URL, &stubRefresher{}, newMemoryCredentials(record))

	created, err := api.CreateRecord(context.Background(), record, "app1", "tbl1", map[string]any{"fld1": "Ada"})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if created.ID != "rec42" {
		t.Fatalf("expected rec42, got %q", created.ID)
	}
	fields, _ := up.lastBody["fields"].(map[string]any)
	if fields["fld1"] != "Ada" {
		t.Fatalf("expected fields envelope, got %v", up.lastBody)
	}
}

func TestAPI_WhoAmIDoesNotRefresh(t *testing.T) {
	up, server := newUpstream(t, "access_1")
	up.handler = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"usr_1","email":"owner@example.com","scopes":["data.records:read"]}`))
	}
	refresher := &stubRefresher{}
	api := newTestAPI(t, server.URL, refresher, newMemoryCredentials())

	profile, err := api.WhoAmI(context.Background(), "access_1")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if profile.ID != "usr_1" || profile.Email != "owner@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if _, err := api.WhoAmI(context.Background(), "bad"); err == nil {
		t.Fatalf("expected error for rejected token")
	}
	if refresher.calls != 0 {
		t.Fatalf("expected whoami never to refresh")
	}
}
