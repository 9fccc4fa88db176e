// Package errors derives low-cardinality error class names for metric and log tags.
package errors

import (
	"reflect"
	"strings"
)

// Classify returns the innermost concrete error type as a tag-safe name,
// for example "pgconn_pgerror". Joined errors classify by their first member.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	err = innermost(err)

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}

func innermost(err error) error {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
}
