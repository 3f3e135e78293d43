package query

import "github.com/goliatone/go-formsync/core"

// Handlers built without a reader fail every call with an internal error.
func queryDependencyError(message string) error {
	return core.InternalError(message, nil)
}

func queryValidationError(field string, message string) error {
	return core.MessageFieldError("query", field, message)
}
