package config

import (
	"fmt"
	"time"
)

// String returns the string option key, or def when it is absent or not a
// string.
func (e ProviderEntry) String(key, def string) string {
	if s, ok := e.Options[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Int returns the integer option key, or def. YAML integers and whole
// floats are accepted.
func (e ProviderEntry) Int(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Bool returns the boolean option key, or def.
func (e ProviderEntry) Bool(key string, def bool) bool {
	if b, ok := e.Options[key].(bool); ok {
		return b
	}
	return def
}

// Duration returns the duration option key, or def. Strings are parsed with
// [time.ParseDuration]; bare numbers are milliseconds.
func (e ProviderEntry) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := e.Options[key].(type) {
	case nil:
		return def, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("config: option %q: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("config: option %q has unsupported type %T", key, v)
	}
}
