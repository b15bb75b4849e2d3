package tools

import (
	"encoding/json"
	"math"

	"github.com/cockroachdb/errors"
)

// Args is the validated argument set of an invocation. Values are strings,
// float64 numbers, int64 integers, booleans, map[string]any or []any.
type Args map[string]any

// Has returns true if the argument is present.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Get returns the raw argument value.
func (a Args) Get(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// String returns the string argument, or empty string.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Float returns the number argument. Integer arguments are converted.
func (a Args) Float(name string) float64 {
	f, _ := toFloat(a[name])
	return f
}

// Int returns the integer argument.
func (a Args) Int(name string) int64 {
	i, _ := toInt(a[name])
	return i
}

// Bool returns the boolean argument.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Decode fills v, a pointer to struct, through its JSON tags.
func (a Args) Decode(v any) error {
	js, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "failed to encode arguments")
	}
	if err = json.Unmarshal(js, v); err != nil {
		return errors.Wrap(err, "failed to decode arguments")
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
