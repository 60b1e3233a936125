package assert

import "reflect"

// NotNil panics when value is nil, including typed nil pointers stored in
// an interface.
func NotNil(value any, name string) {
	if value == nil {
		panic("expected " + name + " to be not nil")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic("expected " + name + " to be not nil")
		}
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic("expected " + name + " to be non-empty")
	}
}
