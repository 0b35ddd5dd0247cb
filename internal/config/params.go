package config

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Has reports whether the key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string parameter at key, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", eris.Errorf("params: %s: expected string, got %T", key, v)
	}
	return s, nil
}

// Float returns the numeric parameter at key, or def when absent.
// Integer YAML values are accepted.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, eris.Errorf("params: %s: expected number, got %T", key, v)
	}
}

// Bool returns the boolean parameter at key, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, eris.Errorf("params: %s: expected bool, got %T", key, v)
	}
	return b, nil
}

// StringSlice returns the string-list parameter at key, or nil when
// absent.
func (p Params) StringSlice(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, eris.Errorf("params: %s: expected string list element, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, eris.Errorf("params: %s: expected string list, got %T", key, v)
	}
}

// StringMap returns the string-to-string map parameter at key, or nil
// when absent. Non-string values are rendered with fmt.Sprint.
func (p Params) StringMap(key string) (map[string]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
		return out, nil
	default:
		return nil, eris.Errorf("params: %s: expected map, got %T", key, v)
	}
}
