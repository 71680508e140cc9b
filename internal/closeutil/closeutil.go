// Package closeutil releases groups of native-backed resources.
package closeutil

import (
	"errors"
	"reflect"
)

// Closer is implemented by resources that must be released explicitly.
type Closer interface {
	Close() error
}

// CloseAll closes every resource in order and joins the non-nil errors.
// Nil interfaces and typed nil pointers are skipped.
func CloseAll(resources ...Closer) error {
	var err error
	for _, resource := range resources {
		if isNil(resource) {
			continue
		}
		if closeErr := resource.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

func isNil(resource Closer) bool {
	if resource == nil {
		return true
	}
	value := reflect.ValueOf(resource)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return value.IsNil()
	default:
		return false
	}
}
