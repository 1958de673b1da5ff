package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPluginConfig indicates a dns_plugin_config line without a
// key/value separator.
var ErrMalformedPluginConfig = errors.New("malformed dns_plugin_config line")

// ParsePluginConfig converts a multi-line "key = value" credential block
// into environment entries for a DNS plugin. Blank lines are skipped,
// keys and values are trimmed, and later duplicates overwrite earlier
// ones. A non-blank line without a separator aborts the whole
// translation: the caller must never proceed with a silently incomplete
// environment.
func ParsePluginConfig(raw string) (map[string]string, error) {
	env := make(map[string]string)

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPluginConfig, line)
		}

		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return env, nil
}
