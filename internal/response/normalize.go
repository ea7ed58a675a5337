package response

import (
	"encoding/json"
	"reflect"
	"time"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	rawJSONType = reflect.TypeOf(json.RawMessage{})
)

// normalizeSlices recursively ensures all nil slices become empty slices so
// clients always receive [] instead of null. Times and raw JSON are kept as
// they are.
func normalizeSlices(data interface{}) interface{} {
	if data == nil {
		return data
	}

	v := reflect.ValueOf(data)
	if skipType(v.Type()) {
		return data
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return data
		}
		elem := v.Elem()
		if skipType(elem.Type()) {
			return data
		}
		normalized := normalizeSlices(elem.Interface())

		result := reflect.New(elem.Type())
		result.Elem().Set(reflect.ValueOf(normalized))
		return result.Interface()

	case reflect.Slice:
		if v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0).Interface()
		}
		result := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			setNormalized(result.Index(i), v.Index(i))
		}
		return result.Interface()

	case reflect.Struct:
		result := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			setNormalized(result.Field(i), v.Field(i))
		}
		return result.Interface()
	}

	return data
}

// setNormalized stores the normalized form of src in dst, copying values that
// need no normalization
func setNormalized(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Slice, reflect.Ptr, reflect.Struct:
		if skipType(src.Type()) || (src.Kind() == reflect.Ptr && src.IsNil()) {
			dst.Set(src)
			return
		}
		dst.Set(reflect.ValueOf(normalizeSlices(src.Interface())))
	default:
		dst.Set(src)
	}
}

func skipType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == timeType || t == rawJSONType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8)
}
