package httpapi

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-formsync/core"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    any             `json:"data,omitempty"`
	Error   *goerrors.Error `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError renders err through the core error mapper. Validation errors
// surface the first field message, which names the question label.
func writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	if mapped == nil {
		mapped = core.InternalError("unexpected error", err)
	}
	mapped = mapped.Clone()
	mapped.StackTrace = nil

	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := mapped.Message
	if len(mapped.ValidationErrors) > 0 && mapped.ValidationErrors[0].Message != "" {
		message = mapped.ValidationErrors[0].Message
	}
	if status >= http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	writeJSON(w, status, envelope{Success: false, Message: message, Error: mapped})
}
