// Package nested provides helpers for working with decoded documents:
// normalisation, deep copies, equality and dotted-path mutation.
package nested

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
)

var (
	// ErrNotMap is returned when a path walks through a value that is not a map.
	ErrNotMap = errors.New("pathstore: path traverses a non-map value")

	// ErrNotList is returned when a list operation targets a value that is not a list.
	ErrNotList = errors.New("pathstore: value at path is not a list")
)

var mapType = reflect.TypeOf(map[string]any{})

// AsMap returns v as a map[string]any. Named map types with string keys
// (bson.M and friends) are converted without copying nested values.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	if rv.Type().ConvertibleTo(mapType) {
		return rv.Convert(mapType).Interface().(map[string]any), true
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Normalize returns a deep copy of v with maps converted to map[string]any,
// slices to []any, integers to int64 and floats to float64. *big.Int values
// that fit in int64 become int64. Byte slices and unknown types are kept.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint:
		return normalizeUint(uint64(t))
	case uint64:
		return normalizeUint(t)
	case float32:
		return float64(t)
	case *big.Int:
		if t == nil {
			return nil
		}
		if t.IsInt64() {
			return t.Int64()
		}
		return new(big.Int).Set(t)
	case []byte:
		return append([]byte(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	}

	if m, ok := AsMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return new(big.Int).SetUint64(u)
}

// Copy returns a normalised deep copy of a document.
func Copy(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return Normalize(doc).(map[string]any)
}

// Equal reports whether a and b hold the same value after normalisation.
// Numbers compare by value at any depth, so 1 and 1.0 are equal. NaN equals
// nothing.
func Equal(a, b any) bool {
	return equalNormalized(Normalize(a), Normalize(b))
}

func equalNormalized(a, b any) bool {
	if x, ok := numberValue(a); ok {
		y, ok := numberValue(b)
		return ok && x != nil && y != nil && x.Cmp(y) == 0
	}

	switch at := a.(type) {
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !equalNormalized(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !equalNormalized(av, bv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// numberValue widens a normalised number to an exact big.Float. A NaN is
// reported as a number with a nil value.
func numberValue(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int64:
		return new(big.Float).SetInt64(n), true
	case float64:
		if math.IsNaN(n) {
			return nil, true
		}
		return new(big.Float).SetFloat64(n), true
	case *big.Int:
		return new(big.Float).SetInt(n), true
	}
	return nil, false
}

// AsList returns v as a []any. Nil is treated as an empty list.
func AsList(v any) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := v.([]byte); isBytes {
		return nil, false
	}
	return Normalize(v).([]any), true
}

// Contains reports whether list holds an element equal to v.
func Contains(list []any, v any) bool {
	for _, e := range list {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

// RemoveAll returns list without any element equal to v.
func RemoveAll(list []any, v any) []any {
	out := make([]any, 0, len(list))
	for _, e := range list {
		if !Equal(e, v) {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the value at field inside doc.
func Get(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(field, ".") {
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at field inside doc, creating intermediate maps.
func Set(doc map[string]any, field string, value any) error {
	keys := strings.Split(field, ".")
	m := doc
	for i, key := range keys[:len(keys)-1] {
		next, exists := m[key]
		if !exists || next == nil {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := AsMap(next)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotMap, strings.Join(keys[:i+1], "."))
		}
		m[key] = child
		m = child
	}
	m[keys[len(keys)-1]] = value
	return nil
}

// Unset removes the value at field. Missing paths are ignored.
func Unset(doc map[string]any, field string) {
	keys := strings.Split(field, ".")
	m := doc
	for _, key := range keys[:len(keys)-1] {
		child, ok := AsMap(m[key])
		if !ok {
			return
		}
		m[key] = child
		m = child
	}
	delete(m, keys[len(keys)-1])
}

// Project returns a document holding only the value at field, nested the same
// way it is in doc. The result is empty when field is absent.
func Project(doc map[string]any, field string) map[string]any {
	out := map[string]any{}
	if v, ok := Get(doc, field); ok {
		_ = Set(out, field, Normalize(v))
	}
	return out
}

// Push appends value to the list at field, creating it when missing.
func Push(doc map[string]any, field string, value any) error {
	cur, _ := Get(doc, field)
	list, ok := AsList(cur)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotList, field)
	}
	return Set(doc, field, append(append([]any(nil), list...), Normalize(value)))
}

// Pull removes every occurrence of value from the list at field.
func Pull(doc map[string]any, field string, value any) error {
	cur, exists := Get(doc, field)
	if !exists {
		return nil
	}
	list, ok := AsList(cur)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotList, field)
	}
	return Set(doc, field, RemoveAll(list, value))
}
