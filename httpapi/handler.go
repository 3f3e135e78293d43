package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	VerifierCookie         = "airtable_code_verifier"
	defaultVerifierTTL     = 10 * time.Minute
	maxRequestBodyBytes    = 1 << 20
	maxNotificationBodyLen = 64 << 10
)

// Backend is the formsync surface served over HTTP.
type Backend interface {
	Connect(ctx context.Context) (core.AuthRedirect, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	CreateForm(ctx context.Context, ownerUserID string, in core.FormInput) (core.Form, error)
	GetForm(ctx context.Context, formID string) (core.Form, error)
	ListForms(ctx context.Context, ownerUserID string) ([]core.Form, error)
	ListSubmissions(ctx context.Context, ownerUserID string, formID string) ([]core.Submission, error)
	SubmitForm(ctx context.Context, formID string, answers map[string]any) (core.Submission, error)
	ListBases(ctx context.Context, ownerUserID string) ([]core.Base, error)
	ListTables(ctx context.Context, ownerUserID string, baseID string) ([]core.Table, error)
	ListFields(ctx context.Context, ownerUserID string, baseID string, tableID string) ([]core.Field, error)
}

// OwnerLookup confirms that a session subject still has a credential.
type OwnerLookup interface {
	Credential(ctx context.Context, ownerUserID string) (core.CredentialRecord, error)
}

type Handler struct {
	backend       Backend
	sessions      *Sessions
	receiver      *webhooks.Receiver
	owners        OwnerLookup
	logger        core.Logger
	frontendURL   string
	secureCookies bool
	mux           *http.ServeMux
}

type Option func(*Handler)

func WithReceiver(receiver *webhooks.Receiver) Option {
	return func(h *Handler) {
		h.receiver = receiver
	}
}

func WithOwnerLookup(owners OwnerLookup) Option {
	return func(h *Handler) {
		h.owners = owners
	}
}

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithFrontendURL(url string) Option {
	return func(h *Handler) {
		h.frontendURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithSecureCookies marks the verifier cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secureCookies = secure
	}
}

func NewHandler(backend Backend, sessions *Sessions, opts ...Option) (*Handler, error) {
	if backend == nil {
		return nil, fmt.Errorf("httpapi: backend is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("httpapi: sessions are required")
	}
	h := &Handler{
		backend:  backend,
		sessions: sessions,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = glog.Ensure(h.logger)
	h.mux = h.routes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("GET /api/auth/airtable", h.connect)
	mux.HandleFunc("GET /api/auth/airtable/callback", h.callback)
	mux.HandleFunc("POST /api/webhooks/airtable", h.notification)

	mux.HandleFunc("GET /api/forms/{id}", h.getForm)
	mux.HandleFunc("POST /api/submissions/{formId}", h.submit)

	mux.Handle("GET /api/airtable/bases", h.requireOwner(h.listBases))
	mux.Handle("GET /api/airtable/bases/{baseId}/tables", h.requireOwner(h.listTables))
	mux.Handle("GET /api/airtable/bases/{baseId}/tables/{tableId}/fields", h.requireOwner(h.listFields))
	mux.Handle("POST /api/forms", h.requireOwner(h.createForm))
	mux.Handle("GET /api/forms", h.requireOwner(h.listForms))
	mux.Handle("GET /api/forms/{formId}/responses", h.requireOwner(h.listResponses))
	return mux
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
