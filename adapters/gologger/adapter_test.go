package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, resolved := Resolve(RootName, provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve(RootName, nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve(RootName, nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestComponentNamesLoggers(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	if Component(provider, "sync") == nil {
		t.Fatalf("expected component logger")
	}
	Component(provider, " ")
	if len(provider.names) != 2 || provider.names[0] != "formsync.sync" || provider.names[1] != RootName {
		t.Fatalf("expected formsync.sync then root name, got %v", provider.names)
	}
	if Component(nil, "sync") == nil {
		t.Fatalf("expected nop logger without provider")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	loggers := ResolveForJob(provider, nil)
	if loggers.JobProvider == nil || loggers.JobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}

	loggers.JobProvider.GetLogger(RootName).Info("webhook queued", "subscription_id", "ach1")

	if len(providerLogger.lines) != 1 {
		t.Fatalf("expected one bridged line, got %d", len(providerLogger.lines))
	}
	line := providerLogger.lines[0]
	if line.msg != "webhook queued" || line.args[0] != "subscription_id" || line.args[1] != "ach1" {
		t.Fatalf("expected bridged line, got %+v", line)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
	names  []string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	p.names = append(p.names, name)
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type logLine struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id    string
	lines []logLine
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lines = append(l.lines, logLine{msg: msg, args: append([]any(nil), args...)})
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
