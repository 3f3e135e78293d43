package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUpstreamAuth      = "FORMSYNC_UPSTREAM_AUTH"
	ErrorUpstreamTransient = "FORMSYNC_UPSTREAM_TRANSIENT"
	ErrorNotFound          = "FORMSYNC_NOT_FOUND"
	ErrorValidation        = "FORMSYNC_VALIDATION"
	ErrorBadInput          = "FORMSYNC_BAD_INPUT"
	ErrorConflict          = "FORMSYNC_CONFLICT"
	ErrorUnauthorized      = "FORMSYNC_UNAUTHORIZED"
	ErrorInternal          = "FORMSYNC_INTERNAL_ERROR"
)

// UpstreamAuthError reports that the external store rejected a credential
// or grant. upstreamCode carries the external error code unmodified.
func UpstreamAuthError(message string, upstreamCode string, cause error) *goerrors.Error {
	err := newTaxonomyError(cause, message, goerrors.CategoryAuth, ErrorUpstreamAuth, http.StatusUnauthorized)
	if code := strings.TrimSpace(upstreamCode); code != "" {
		err.WithMetadata(map[string]any{"upstream_code": code})
	}
	return err
}

// UpstreamTransientError reports a network failure or 5xx from upstream.
func UpstreamTransientError(message string, cause error) *goerrors.Error {
	return newTaxonomyError(cause, message, goerrors.CategoryExternal, ErrorUpstreamTransient, http.StatusBadGateway)
}

func NotFoundError(message string) *goerrors.Error {
	return newTaxonomyError(nil, message, goerrors.CategoryNotFound, ErrorNotFound, http.StatusNotFound)
}

// ValidationError names the offending field by its label.
func ValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

// MessageFieldError rejects a malformed command or query message. It keeps
// the bad_input text code so transports answer 400 without a field map.
func MessageFieldError(scope string, field string, message string) *goerrors.Error {
	return goerrors.NewValidation(scope+": "+message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func BadInputError(message string) *goerrors.Error {
	return newTaxonomyError(nil, message, goerrors.CategoryBadInput, ErrorBadInput, http.StatusBadRequest)
}

// UnauthorizedError reports a caller that failed local authentication, such
// as a missing session or a bad webhook MAC.
func UnauthorizedError(message string, cause error) *goerrors.Error {
	return newTaxonomyError(cause, message, goerrors.CategoryAuth, ErrorUnauthorized, http.StatusUnauthorized)
}

func ConflictError(message string) *goerrors.Error {
	return newTaxonomyError(nil, message, goerrors.CategoryConflict, ErrorConflict, http.StatusConflict)
}

func InternalError(message string, cause error) *goerrors.Error {
	return newTaxonomyError(cause, message, goerrors.CategoryInternal, ErrorInternal, http.StatusInternalServerError)
}

// UpstreamCode returns the external error code attached to err, if any.
func UpstreamCode(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return ""
	}
	code, _ := richErr.Metadata["upstream_code"].(string)
	return code
}

func IsUpstreamAuth(err error) bool {
	return hasTextCode(err, ErrorUpstreamAuth)
}

func IsUpstreamTransient(err error) bool {
	return hasTextCode(err, ErrorUpstreamTransient)
}

func IsNotFound(err error) bool {
	if hasTextCode(err, ErrorNotFound) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound
}

func IsValidation(err error) bool {
	return hasTextCode(err, ErrorValidation)
}

func IsConflict(err error) bool {
	return hasTextCode(err, ErrorConflict)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func newTaxonomyError(
	cause error,
	message string,
	category goerrors.Category,
	textCode string,
	status int,
) *goerrors.Error {
	if cause != nil {
		return goerrors.Wrap(cause, category, message).
			WithCode(status).
			WithTextCode(textCode)
	}
	return goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
}

// MapError normalizes any error into a go-errors envelope with an HTTP
// status and a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(NotFoundError(err.Error()))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(BadInputError(err.Error()))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorUpstreamTransient
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
