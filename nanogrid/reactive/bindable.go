package reactive

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// ErrNoSetter is returned by SetBindable when the target has no usable
// Set<Property> method
var ErrNoSetter = errors.New("no setter for bindable property")

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// SetBindable assigns value to a property through its conventional setter:
// property "pageSize" dispatches to target.SetPageSize(value). A setter may
// return an error, which is passed through.
func SetBindable(target any, property string, value any) error {
	if property == "" {
		return fmt.Errorf("%w: empty property name", ErrNoSetter)
	}
	name := "Set" + upperFirst(property)

	m := reflect.ValueOf(target).MethodByName(name)
	if !m.IsValid() {
		return fmt.Errorf("%w: %T has no method %s for property %q", ErrNoSetter, target, name, property)
	}

	mt := m.Type()
	if mt.NumIn() != 1 {
		return fmt.Errorf("%w: %T.%s must take exactly one argument", ErrNoSetter, target, name)
	}

	in := mt.In(0)
	var arg reflect.Value
	switch {
	case value == nil:
		arg = reflect.Zero(in)
	default:
		arg = reflect.ValueOf(value)
		if !arg.Type().AssignableTo(in) {
			if !arg.Type().ConvertibleTo(in) {
				return fmt.Errorf("%w: %T.%s does not accept %T", ErrNoSetter, target, name, value)
			}
			arg = arg.Convert(in)
		}
	}

	out := m.Call([]reflect.Value{arg})
	if n := len(out); n > 0 && mt.Out(n-1).Implements(errorType) {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return err
		}
	}
	return nil
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
