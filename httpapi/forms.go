package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/webhooks"
)

type submitRequest struct {
	Answers map[string]any `json:"answers"`
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.backend.GetForm(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, form)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Answers == nil {
		writeError(w, core.BadInputError("Answers are required"))
		return
	}
	submission, err := h.backend.SubmitForm(r.Context(), r.PathValue("formId"), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Form submitted successfully",
		Data:    submission,
	})
}

func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	var in core.FormInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	form, err := h.backend.CreateForm(r.Context(), OwnerFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, form)
}

func (h *Handler) listForms(w http.ResponseWriter, r *http.Request) {
	forms, err := h.backend.ListForms(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if forms == nil {
		forms = []core.Form{}
	}
	writeData(w, http.StatusOK, forms)
}

func (h *Handler) listResponses(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.backend.ListSubmissions(r.Context(), OwnerFromContext(r.Context()), r.PathValue("formId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if submissions == nil {
		submissions = []core.Submission{}
	}
	writeData(w, http.StatusOK, submissions)
}

func (h *Handler) listBases(w http.ResponseWriter, r *http.Request) {
	bases, err := h.backend.ListBases(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, bases)
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.backend.ListTables(r.Context(), OwnerFromContext(r.Context()), r.PathValue("baseId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tables)
}

func (h *Handler) listFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.backend.ListFields(
		r.Context(),
		OwnerFromContext(r.Context()),
		r.PathValue("baseId"),
		r.PathValue("tableId"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, fields)
}

// notification always answers 200 OK. Rejections and failures are logged
// by the receiver; the external store retries on its next change.
func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBodyLen))
	if err != nil {
		h.logger.Warn("webhook body read failed", "error", err.Error())
	}
	if h.receiver != nil && err == nil {
		h.receiver.Receive(r.Context(), r.Header.Get(webhooks.MACHeader), body)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(out); err != nil {
		return core.BadInputError("invalid JSON body: " + err.Error())
	}
	return nil
}
