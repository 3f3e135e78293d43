package command

import "github.com/goliatone/go-formsync/core"

func commandDependencyError(message string) error {
	return core.InternalError(message, nil)
}

func commandValidationError(field string, message string) error {
	return core.MessageFieldError("command", field, message)
}
