package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-formsync/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryAuth:
		return core.ErrorUpstreamAuth
	case goerrors.CategoryNotFound:
		return core.ErrorNotFound
	case goerrors.CategoryExternal:
		return core.ErrorUpstreamTransient
	default:
		return core.ErrorInternal
	}
}

// UpstreamError is the error body shape of the record store API. The error
// member is either a bare code string or an object with type and message.
type UpstreamError struct {
	Type    string
	Message string
}

func parseUpstreamError(body []byte) UpstreamError {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return UpstreamError{}
	}
	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		return UpstreamError{Type: code}
	}
	var detailed struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detailed); err == nil {
		return UpstreamError{Type: detailed.Type, Message: detailed.Message}
	}
	return UpstreamError{}
}

// StatusError maps a non-2xx response onto the error taxonomy: 401 is an
// upstream auth failure, 404 is not found, 429 and 5xx are transient and
// other 4xx are bad input. It returns nil for 2xx responses.
func StatusError(operation string, res Response) error {
	if res.OK() {
		return nil
	}
	upstream := parseUpstreamError(res.Body)
	message := fmt.Sprintf("%s: status %d", strings.TrimSpace(operation), res.StatusCode)
	if upstream.Type != "" {
		message += " " + upstream.Type
	}
	if upstream.Message != "" {
		message += ": " + upstream.Message
	}

	var err *goerrors.Error
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		err = core.UpstreamAuthError(message, upstream.Type, nil)
	case res.StatusCode == http.StatusNotFound:
		err = core.NotFoundError(message)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		err = core.UpstreamTransientError(message, nil)
	default:
		err = core.BadInputError(message)
	}
	metadata := map[string]any{
		"status_code":     res.StatusCode,
		"upstream_type":   upstream.Type,
		"upstream_detail": upstream.Message,
	}
	if res.StatusCode == http.StatusUnauthorized && upstream.Type != "" {
		metadata["upstream_code"] = upstream.Type
	}
	return err.WithMetadata(metadata)
}
