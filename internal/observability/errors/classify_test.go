package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type reasonErr struct{ reason string }

func (e reasonErr) Error() string  { return "reason error" }
func (e reasonErr) Reason() string { return e.reason }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "reasoner", err: reasonErr{reason: "timeout"}, want: "timeout"},
		{name: "wrapped reasoner", err: fmt.Errorf("run: %w", reasonErr{reason: "panic"}), want: "panic"},
		{name: "blank reason falls back to type", err: reasonErr{}, want: "errors_reasonerr"},
		{name: "pointer type", err: fmt.Errorf("wrap: %w", &plainErr{}), want: "errors_plainerr"},
		{name: "stdlib", err: goerrors.New("x"), want: "errors_errorstring"},
		{name: "deadline", err: fmt.Errorf("handler: %w", context.DeadlineExceeded), want: "deadline_exceeded"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "reason beats deadline", err: goerrors.Join(context.DeadlineExceeded, reasonErr{reason: "timeout"}), want: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
