package widget

import (
	"encoding/json"
	"reflect"
)

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value. The JSON shapes are copied
// directly; other slices, arrays and maps go through reflection. Structs and
// pointers are returned as is.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case []string:
		return append([]string(nil), val...)
	case map[string]string:
		cp := make(map[string]string, len(val))
		for k, s := range val {
			cp[k] = s
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return deepCopyReflect(v)
	}
}

func deepCopyReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			cp.Index(i).Set(copyValue(rv.Index(i)))
		}
		return cp.Interface()
	case reflect.Array:
		cp := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			cp.Index(i).Set(copyValue(rv.Index(i)))
		}
		return cp.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return cp.Interface()
	default:
		return v
	}
}

// copyValue deep-copies src and returns it as a value of src's own type so it
// can be stored back into a slice element or map entry.
func copyValue(src reflect.Value) reflect.Value {
	if !src.CanInterface() || (src.Kind() == reflect.Interface && src.IsNil()) {
		return src
	}
	cp := deepCopyAny(src.Interface())
	if cp == nil {
		return reflect.Zero(src.Type())
	}
	out := reflect.ValueOf(cp)
	if out.Type() == src.Type() {
		return out
	}
	holder := reflect.New(src.Type()).Elem()
	holder.Set(out)
	return holder
}

// DeepCopy returns a deep copy of a configuration map.
func DeepCopy(m map[string]any) map[string]any {
	return deepCopyMap(m)
}
