// Package errors derives low-cardinality labels from errors for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Reasoner is implemented by errors that carry their own metric classification.
type Reasoner interface {
	Reason() string
}

const unknownReason = "unknown"

// Classify maps err to a label. A non-blank Reasoner anywhere in the chain wins, then context
// cancellation and deadlines, then the type name of the innermost error (package_type).
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if r := reasonOf(err); r != "" {
		return r
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	return typeLabel(innermost(err))
}

func reasonOf(err error) string {
	var r Reasoner
	if !goerrors.As(err, &r) {
		return ""
	}
	return strings.TrimSpace(r.Reason())
}

func innermost(err error) error {
	for next := goerrors.Unwrap(err); next != nil; next = goerrors.Unwrap(err) {
		err = next
	}
	return err
}

func typeLabel(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return unknownReason
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}
