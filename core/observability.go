package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Operation outcomes, derived from the error taxonomy.
const (
	outcomeOK                = "ok"
	outcomeNotFound          = "not_found"
	outcomeRejected          = "rejected"
	outcomeUpstreamAuth      = "upstream_auth"
	outcomeUpstreamTransient = "upstream_transient"
	outcomeFailed            = "failed"
)

func operationOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsNotFound(err):
		return outcomeNotFound
	case IsValidation(err), hasTextCode(err, ErrorBadInput), IsConflict(err):
		return outcomeRejected
	case IsUpstreamAuth(err):
		return outcomeUpstreamAuth
	case IsUpstreamTransient(err):
		return outcomeUpstreamTransient
	default:
		return outcomeFailed
	}
}

// observeOperation logs one service call and records its count and latency.
// Caller mistakes and upstream hiccups log at warn; only unexpected failures
// log at error.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	elapsed := time.Since(startedAt).Milliseconds()
	outcome := operationOutcome(err)

	logFields := make(map[string]any, len(fields)+5)
	for key, value := range fields {
		logFields[key] = value
	}
	logFields["operation"] = operation
	logFields["outcome"] = outcome
	logFields["duration_ms"] = elapsed
	if err != nil {
		logFields["error"] = err.Error()
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.TextCode != "" {
			logFields["text_code"] = rich.TextCode
		}
		if code := UpstreamCode(err); code != "" {
			logFields["upstream_code"] = code
		}
	}

	tags := make(map[string]string, len(metricTagKeys))
	for _, key := range metricTagKeys {
		value, ok := logFields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	s.recordOperation(ctx, tags, elapsed)

	switch outcome {
	case outcomeOK:
		s.logInfo(ctx, operation+" completed", logFields)
	case outcomeFailed:
		s.logError(ctx, operation+" failed", logFields)
	default:
		s.logWarn(ctx, operation+" "+outcome, logFields)
	}
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger := s.contextLogger(ctx); logger != nil {
		logger.Info(message, flattenFields(fields)...)
	}
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	if logger := s.contextLogger(ctx); logger != nil {
		logger.Warn(message, flattenFields(fields)...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger := s.contextLogger(ctx); logger != nil {
		logger.Error(message, flattenFields(fields)...)
	}
}

func (s *Service) contextLogger(ctx context.Context) Logger {
	if s == nil || s.logger == nil {
		return nil
	}
	if ctx == nil {
		return s.logger
	}
	return s.logger.WithContext(ctx)
}

// flattenFields turns fields into sorted key/value pairs for stable output.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
