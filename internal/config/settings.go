package config

// Settings holds provider-specific configuration values. Values may be
// strings, numbers, booleans, or nested maps; the typed accessors below cover
// the shapes YAML decoding produces.
type Settings map[string]any

// String returns the string value stored under key, or "" when absent or not
// a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// StringOr returns the string under key, or def when absent.
func (s Settings) StringOr(key, def string) string {
	if v, ok := s[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the integer under key. YAML decodes whole numbers as int and
// fractional ones as float64; both are accepted.
func (s Settings) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// IntOr returns the integer under key, or def when absent or zero.
func (s Settings) IntOr(key string, def int) int {
	if v := s.Int(key); v != 0 {
		return v
	}
	return def
}

// Float returns the floating-point value under key.
func (s Settings) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean under key, false when absent.
func (s Settings) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}
