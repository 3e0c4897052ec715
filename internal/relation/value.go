// Package relation implements the immutable tuple and relation values the
// inference engine consumes and produces, together with the mutable builder
// and hash indexes used while a fixpoint is being computed.
package relation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Value is an atomic tuple element. After normalisation it is always one of
// int64, float64, string or bool.
type Value = any

// ErrNotAtomic is returned when a host value cannot be used as a tuple element.
var ErrNotAtomic = errors.New("value is not atomic")

// Normalize widens a host value to one of the four atomic kinds.
// Named types (type Role string) are accepted through their underlying kind.
func Normalize(v any) (Value, error) {
	switch x := v.(type) {
	case float64:
		return canonicalFloat(x), nil
	case int64, string, bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return canonicalFloat(float64(x)), nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrNotAtomic)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return canonicalFloat(rv.Float()), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotAtomic, v)
}

// canonicalFloat folds -0 into 0 and every NaN payload into one NaN, so equal
// floats share a key.
func canonicalFloat(f float64) float64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return math.NaN()
	}
	return f
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrNotAtomic, u)
	}
	return int64(u), nil
}

// kind ranks values of different types so that Compare is a total order.
func kind(v Value) int {
	switch v.(type) {
	case bool:
		return 0
	case int64:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

// CompareValues orders two normalised values. Values of different kinds are
// ordered bool < int64 < float64 < string; NaN sorts after every other float.
func CompareValues(a, b Value) int {
	ka, kb := kind(a), kind(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		return compareFloats(x, b.(float64))
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return 0
}

// compareFloats orders NaN after every other float and breaks remaining ties
// on the bit pattern, so it returns 0 exactly when appendKey agrees.
func compareFloats(x, y float64) int {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xn && !yn:
		return 1
	case yn && !xn:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	bx, by := math.Float64bits(x), math.Float64bits(y)
	switch {
	case bx < by:
		return -1
	case bx > by:
		return 1
	}
	return 0
}

// appendKey appends a self-delimiting encoding of v. Two values have the same
// encoding exactly when they are structurally equal.
func appendKey(buf []byte, v Value) []byte {
	switch x := v.(type) {
	case bool:
		if x {
			return append(buf, 'b', 1)
		}
		return append(buf, 'b', 0)
	case int64:
		buf = append(buf, 'i')
		return binary.BigEndian.AppendUint64(buf, uint64(x))
	case float64:
		buf = append(buf, 'f')
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(x))
	case string:
		buf = append(buf, 's')
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		return append(buf, x...)
	}
	return append(buf, '?')
}

// Key returns the canonical hash key of a sequence of values.
func Key(vals ...Value) string {
	var buf []byte
	for _, v := range vals {
		buf = appendKey(buf, v)
	}
	return string(buf)
}

// FormatValue renders a value the way relations print it.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprintf("%v", v)
}
