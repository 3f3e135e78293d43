package recordstore

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/transport"
)

// FormFieldTypes lists the field types a form question can bind to.
var FormFieldTypes = []string{
	"singleLineText",
	"multilineText",
	"singleSelect",
	"multipleSelects",
	"multipleAttachments",
	"number",
	"email",
	"url",
	"checkbox",
	"date",
}

// API is the typed record store surface on top of Client.
type API struct {
	client  *Client
	baseURL string
}

func NewAPI(client *Client, baseURL string) *API {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = core.DefaultAPIBaseURL
	}
	return &API{client: client, baseURL: baseURL}
}

// WhoAmI identifies the account behind a freshly issued access token. It
// does not refresh.
func (a *API) WhoAmI(ctx context.Context, accessToken string) (core.Profile, error) {
	res, err := a.client.rest.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     a.endpoint("meta", "whoami"),
		Headers: map[string]string{"Authorization": "Bearer " + strings.TrimSpace(accessToken)},
		Timeout: a.client.timeout,
	})
	if err != nil {
		return core.Profile{}, err
	}
	if err := transport.StatusError("whoami", res); err != nil {
		return core.Profile{}, err
	}
	var profile core.Profile
	if err := res.Decode(&profile); err != nil {
		return core.Profile{}, err
	}
	return profile, nil
}

// ListBases follows the offset pagination of the bases listing.
func (a *API) ListBases(ctx context.Context, credential core.CredentialRecord) ([]core.Base, error) {
	bases := []core.Base{}
	offset := ""
	for {
		req := transport.Request{Method: http.MethodGet, URL: a.endpoint("meta", "bases")}
		if offset != "" {
			req.Query = map[string]string{"offset": offset}
		}
		var page struct {
			Bases  []core.Base `json:"bases"`
			Offset string      `json:"offset"`
		}
		next, err := a.call(ctx, credential, "list bases", req, &page)
		if err != nil {
			return nil, err
		}
		credential = next
		bases = append(bases, page.Bases...)
		if page.Offset == "" || page.Offset == offset {
			return bases, nil
		}
		offset = page.Offset
	}
}

func (a *API) ListTables(ctx context.Context, credential core.CredentialRecord, baseID string) ([]core.Table, error) {
	var out struct {
		Tables []core.Table `json:"tables"`
	}
	req := transport.Request{Method: http.MethodGet, URL: a.endpoint("meta", "bases", baseID, "tables")}
	if _, err := a.call(ctx, credential, "list tables", req, &out); err != nil {
		return nil, err
	}
	if out.Tables == nil {
		out.Tables = []core.Table{}
	}
	return out.Tables, nil
}

// ListFields returns the fields of tableID whose type a form can bind to.
func (a *API) ListFields(ctx context.Context, credential core.CredentialRecord, baseID string, tableID string) ([]core.Field, error) {
	tables, err := a.ListTables(ctx, credential, baseID)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		if table.ID != tableID {
			continue
		}
		fields := []core.Field{}
		for _, field := range table.Fields {
			if isFormFieldType(field.Type) {
				fields = append(fields, field)
			}
		}
		return fields, nil
	}
	return nil, core.NotFoundError("Table not found")
}

func (a *API) CreateRecord(ctx context.Context, credential core.CredentialRecord, baseID string, tableID string, fields map[string]any) (core.ExternalRecord, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	req, err := jsonRequest(http.MethodPost, a.endpoint(baseID, tableID), map[string]any{"fields": fields})
	if err != nil {
		return core.ExternalRecord{}, err
	}
	var record core.ExternalRecord
	if _, err := a.call(ctx, credential, "create record", req, &record); err != nil {
		return core.ExternalRecord{}, err
	}
	return record, nil
}

// CreateWebhook registers a base-wide table data webhook.
func (a *API) CreateWebhook(ctx context.Context, credential core.CredentialRecord, baseID string, notificationURL string) (core.WebhookRegistration, error) {
	body := map[string]any{
		"notificationUrl": notificationURL,
		"specification": map[string]any{
			"options": map[string]any{
				"filters": map[string]any{
					"dataTypes": []string{"tableData"},
				},
			},
		},
	}
	req, err := jsonRequest(http.MethodPost, a.endpoint("bases", baseID, "webhooks"), body)
	if err != nil {
		return core.WebhookRegistration{}, err
	}
	var registration core.WebhookRegistration
	if _, err := a.call(ctx, credential, "create webhook", req, &registration); err != nil {
		return core.WebhookRegistration{}, err
	}
	return registration, nil
}

// ListWebhookPayloads reads one page of the webhook feed. A cursor of zero
// starts from the beginning.
func (a *API) ListWebhookPayloads(ctx context.Context, credential core.CredentialRecord, baseID string, webhookID string, cursor int64) (core.PayloadPage, error) {
	req := transport.Request{Method: http.MethodGet, URL: a.endpoint("bases", baseID, "webhooks", webhookID, "payloads")}
	if cursor > 0 {
		req.Query = map[string]string{"cursor": strconv.FormatInt(cursor, 10)}
	}
	var page core.PayloadPage
	if _, err := a.call(ctx, credential, "list webhook payloads", req, &page); err != nil {
		return core.PayloadPage{}, err
	}
	return page, nil
}

func (a *API) call(ctx context.Context, credential core.CredentialRecord, operation string, req transport.Request, out any) (core.CredentialRecord, error) {
	res, used, err := a.client.Call(ctx, credential, req)
	if err != nil {
		return credential, err
	}
	if err := transport.StatusError(operation, res); err != nil {
		return used, err
	}
	if out == nil {
		return used, nil
	}
	return used, res.Decode(out)
}

func (a *API) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, a.baseURL)
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(escaped, "/")
}

func isFormFieldType(fieldType string) bool {
	for _, allowed := range FormFieldTypes {
		if allowed == fieldType {
			return true
		}
	}
	return false
}

var _ core.RecordStoreAPI = (*API)(nil)
