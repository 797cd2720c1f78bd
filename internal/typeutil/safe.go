// Package typeutil provides small, panic-free type-conversion helpers used
// when unpacking the `any`-typed option values that flow through
// options.Router and the transport vtable's SetOption.
package typeutil

import "fmt"

// AsInt narrows v to an int, accepting the handful of numeric types a
// caller might reasonably pass for an integer-valued option.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("typeutil: expected an integer, got %T", v)
	}
}

// AsString narrows v to a string.
func AsString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("typeutil: expected a string, got %T", v)
	}
	return s, nil
}

// AsBool narrows v to a bool.
func AsBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("typeutil: expected a bool, got %T", v)
	}
	return b, nil
}

// AsBytes narrows v to a []byte.
func AsBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("typeutil: expected []byte, got %T", v)
	}
	return b, nil
}

// CopyStringMap returns a shallow copy of m, or nil if m is nil. Used
// wherever an owned copy of caller-supplied properties must outlive the
// call that handed them in.
func CopyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CopyBytes returns a copy of b, or nil if b is nil.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
