package relation

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotRelation is returned by FromHost for values that do not denote a set of tuples.
var ErrNotRelation = errors.New("value is not a relation")

// FromHost converts a host value found in a scope or binding into a Relation.
//
// Accepted shapes:
//   - Relation or *Relation
//   - []Tuple
//   - a slice, array or map (keys) of atoms: a unary relation
//   - a slice, array or map (keys) of slices or arrays of atoms: an n-ary relation
//
// Maps with bool values skip keys mapped to false, so map[T]bool sets work.
func FromHost(v any) (Relation, error) {
	switch x := v.(type) {
	case Relation:
		return x, nil
	case *Relation:
		if x == nil {
			return Relation{}, fmt.Errorf("%w: nil *Relation", ErrNotRelation)
		}
		return *x, nil
	case []Tuple:
		return New(UnknownArity, x...)
	case nil:
		return Relation{}, fmt.Errorf("%w: nil", ErrNotRelation)
	}

	rv := reflect.ValueOf(v)
	var elems []reflect.Value
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return Relation{}, fmt.Errorf("%w: %T", ErrNotRelation, v)
		}
		elems = make([]reflect.Value, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i)
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if val := iter.Value(); val.Kind() == reflect.Bool && !val.Bool() {
				continue
			}
			elems = append(elems, iter.Key())
		}
	default:
		return Relation{}, fmt.Errorf("%w: %T", ErrNotRelation, v)
	}

	b := NewBuilder(UnknownArity)
	for i, e := range elems {
		t, err := hostTuple(e)
		if err != nil {
			return Relation{}, fmt.Errorf("%w: element %d: %v", ErrNotRelation, i, err)
		}
		if _, err := b.Add(t); err != nil {
			return Relation{}, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return b.Freeze(), nil
}

func hostTuple(e reflect.Value) (Tuple, error) {
	for e.Kind() == reflect.Interface && !e.IsNil() {
		e = e.Elem()
	}
	if e.CanInterface() {
		if t, ok := e.Interface().(Tuple); ok {
			return t, nil
		}
	}
	switch e.Kind() {
	case reflect.Slice, reflect.Array:
		vals := make([]any, e.Len())
		for i := range vals {
			vals[i] = e.Index(i).Interface()
		}
		return NewTuple(vals...)
	}
	if !e.IsValid() || !e.CanInterface() {
		return Tuple{}, ErrNotAtomic
	}
	return NewTuple(e.Interface())
}
