package audit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrNotStruct is returned when an entity is not a struct or a non-nil pointer to one
	ErrNotStruct = errors.New("entity is not a struct")

	// ErrTypeMismatch is returned when before and after are different types
	ErrTypeMismatch = errors.New("before and after have different types")
)

type fieldInfo struct {
	key    string
	goName string
	index  []int
}

// reflect.Type -> []fieldInfo
var fieldCache sync.Map

// Snapshot copies every own field of entity into a plain map keyed by the
// field's audit or json tag name. Nil pointers become nil and non-nil
// pointers are replaced by the value they point to. Fields tagged
// audit:"-" or json:"-" are left out.
func Snapshot(entity any) (map[string]any, error) {
	v, err := structValue(entity)
	if err != nil {
		return nil, err
	}

	fields := fieldsOf(v.Type())
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, ok := fieldValue(v, f)
		if !ok {
			continue
		}
		out[f.key] = plain(fv)
	}
	return out, nil
}

// DiffUpdate compares the touched fields of before and after and returns the
// ones whose values differ. Touched names may be snapshot keys or Go field
// names; unknown names are ignored. A nil touched slice compares every field.
// The result is nil when nothing changed.
func DiffUpdate(before, after any, touched []string) (*ObjectChanges, error) {
	bv, err := structValue(before)
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	av, err := structValue(after)
	if err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}
	if bv.Type() != av.Type() {
		return nil, fmt.Errorf("%w: %s and %s", ErrTypeMismatch, bv.Type(), av.Type())
	}

	fields := fieldsOf(bv.Type())
	if touched != nil {
		fields = selectTouched(fields, touched)
	}

	changes := &ObjectChanges{
		Before: make(map[string]any),
		After:  make(map[string]any),
	}
	for _, f := range fields {
		b, bok := fieldValue(bv, f)
		a, aok := fieldValue(av, f)
		if !bok || !aok || valuesEqual(b, a) {
			continue
		}
		changes.Before[f.key] = plain(b)
		changes.After[f.key] = plain(a)
	}

	if len(changes.Before) == 0 {
		return nil, nil
	}
	return changes, nil
}

func selectTouched(fields []fieldInfo, touched []string) []fieldInfo {
	want := make(map[string]struct{}, len(touched))
	for _, name := range touched {
		want[name] = struct{}{}
	}

	selected := make([]fieldInfo, 0, len(touched))
	for _, f := range fields {
		_, byKey := want[f.key]
		_, byName := want[f.goName]
		if byKey || byName {
			selected = append(selected, f)
		}
	}
	return selected
}

func structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: nil", ErrNotStruct)
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil %s", ErrNotStruct, v.Type())
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNotStruct, v.Type())
	}
	return v, nil
}

func fieldsOf(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		key, ok := fieldKey(f)
		if !ok {
			continue
		}
		fields = append(fields, fieldInfo{key: key, goName: f.Name, index: f.Index})
	}

	actual, _ := fieldCache.LoadOrStore(t, fields)
	return actual.([]fieldInfo)
}

func fieldKey(f reflect.StructField) (string, bool) {
	if tag, ok := f.Tag.Lookup("audit"); ok {
		if tag == "-" {
			return "", false
		}
		if tag != "" {
			return tag, true
		}
	}

	if tag, ok := f.Tag.Lookup("json"); ok {
		if tag == "-" {
			return "", false
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name, true
		}
	}
	return f.Name, true
}

// fieldValue returns the field, or an invalid Value when it sits behind a nil
// embedded pointer. ok is false for fields that cannot be read.
func fieldValue(v reflect.Value, f fieldInfo) (reflect.Value, bool) {
	fv, err := v.FieldByIndexErr(f.index)
	if err != nil {
		return reflect.Value{}, true
	}
	return fv, fv.CanInterface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// plain converts a field to the value stored in a snapshot. Slices and maps
// are copied so later mutation of the entity does not leak into the entry.
func plain(v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v.Interface()
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(cp, v)
		return cp.Interface()
	case reflect.Map:
		if v.IsNil() {
			return v.Interface()
		}
		cp := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	default:
		return v.Interface()
	}
}

var boolType = reflect.TypeOf(true)

// valuesEqual compares two field values. Nil on both sides is equal,
// different dynamic types are not, a type's own Equal method wins when it has
// one (time.Time), and everything else falls back to reflect.DeepEqual.
func valuesEqual(a, b reflect.Value) bool {
	a, b = indirect(a), indirect(b)
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	if m := a.MethodByName("Equal"); m.IsValid() {
		mt := m.Type()
		if mt.NumIn() == 1 && mt.In(0) == b.Type() && mt.NumOut() == 1 && mt.Out(0) == boolType {
			return m.Call([]reflect.Value{b})[0].Bool()
		}
	}

	return reflect.DeepEqual(a.Interface(), b.Interface())
}
