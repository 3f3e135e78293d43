package main

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// envConfigLoader maps FORMSYNC_SECTION__KEY=value onto {"section": {"key": value}}.
// Keys without a section separator land at the top level.
type envConfigLoader struct {
	prefix  string
	environ func() []string
}

var (
	listKeys = map[string]bool{
		"oauth.scopes": true,
	}
	intKeys = map[string]bool{
		"oauth.state_ttl_seconds":           true,
		"oauth.verifier_cookie_ttl_seconds": true,
		"api.request_timeout_seconds":       true,
		"api.refresh_skew_seconds":          true,
		"webhooks.queue_size":               true,
		"webhooks.workers":                  true,
		"sync.max_pages":                    true,
		"sync.lock_ttl_seconds":             true,
		"http.session_ttl_seconds":          true,
		"redis.db":                          true,
	}
	boolKeys = map[string]bool{
		"webhooks.verify_mac": true,
		"oauth.server_state":  true,
		"database.debug":      true,
	}
)

func (l envConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	environ := l.environ
	if environ == nil {
		environ = os.Environ
	}
	out := map[string]any{}
	for _, entry := range environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, l.prefix)), "__")
		if len(path) == 0 || path[0] == "" {
			continue
		}
		setPath(out, path, envValue(strings.Join(path, "."), value))
	}
	return out, nil
}

func setPath(out map[string]any, path []string, value any) {
	current := out
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func envValue(key string, raw string) any {
	raw = strings.TrimSpace(raw)
	switch {
	case listKeys[key]:
		return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	case intKeys[key]:
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case boolKeys[key]:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}
