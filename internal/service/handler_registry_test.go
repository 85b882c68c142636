package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
)

func TestHandlerRegistry_Register(t *testing.T) {
	r := NewHandlerRegistry()

	require.NoError(t, r.Register("b", okHandler(nil)))
	require.NoError(t, r.Register("a", okHandler(nil)))

	err := r.Register("a", okHandler(nil))
	require.ErrorIs(t, err, ErrHandlerAlreadyRegistered)
	assert.Contains(t, err.Error(), `"a"`)

	require.ErrorIs(t, r.Register("", okHandler(nil)), ErrInvalidHandler)
	require.ErrorIs(t, r.Register("c", nil), ErrInvalidHandler)

	assert.Equal(t, []model.JobType{"a", "b"}, r.Types())
	assert.Equal(t, 2, r.Len())

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	_, ok = r.Lookup("c")
	assert.False(t, ok)
}

func TestHandlerRegistry_Replace(t *testing.T) {
	r := NewHandlerRegistry()

	replaced, err := r.Replace("a", okHandler("one"))
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = r.Replace("a", okHandler("two"))
	require.NoError(t, err)
	assert.True(t, replaced)

	h, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "two", h(context.Background(), model.Job{}).Result)

	_, err = r.Replace("a", nil)
	require.ErrorIs(t, err, ErrInvalidHandler)
}

func TestResolvePayload(t *testing.T) {
	type payload struct {
		N int `json:"n"`
	}

	tests := []struct {
		name     string
		raw      any
		want     payload
		mismatch bool
	}{
		{name: "value", raw: payload{N: 1}, want: payload{N: 1}},
		{name: "pointer", raw: &payload{N: 2}, want: payload{N: 2}},
		{name: "raw message", raw: json.RawMessage(`{"n":3}`), want: payload{N: 3}},
		{name: "bytes", raw: []byte(`{"n":4}`), want: payload{N: 4}},
		{name: "empty bytes", raw: []byte{}, mismatch: true},
		{name: "empty raw message", raw: json.RawMessage(nil), mismatch: true},
		{name: "blank json", raw: []byte("  \n"), mismatch: true},
		{name: "json null", raw: json.RawMessage("null"), mismatch: true},
		{name: "nil pointer", raw: (*payload)(nil), mismatch: true},
		{name: "nil", raw: nil, mismatch: true},
		{name: "wrong type", raw: "text", mismatch: true},
		{name: "bad json", raw: []byte(`{"n":"x"}`), mismatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePayload[payload]("test", tt.raw)
			if tt.mismatch {
				var pm *PayloadMismatchError
				require.ErrorAs(t, err, &pm)
				assert.Equal(t, model.JobType("test"), pm.JobType)
				assert.Equal(t, ReasonPayloadMismatch, obserrors.Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayloadMismatchError_Unwrap(t *testing.T) {
	inner := errors.New("decode failed")
	err := &PayloadMismatchError{JobType: "x", Want: "int", Got: "json", Err: inner}

	require.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "want int, got json: decode failed")
}

func TestHandlerFromFunc(t *testing.T) {
	ok := HandlerFromFunc(func(context.Context, model.Job) (any, error) { return 7, nil })
	out := ok(context.Background(), model.Job{})
	assert.True(t, out.Success)
	assert.Equal(t, 7, out.Result)

	boom := errors.New("boom")
	bad := HandlerFromFunc(func(context.Context, model.Job) (any, error) { return nil, boom })
	out = bad(context.Background(), model.Job{})
	assert.False(t, out.Success)
	assert.Equal(t, "boom", out.Error)
	assert.ErrorIs(t, out.Cause, boom)
}

func TestRegisterTyped_NilHandler(t *testing.T) {
	r := NewHandlerRegistry()
	require.ErrorIs(t, RegisterTyped[int](r, "n", nil), ErrInvalidHandler)
}
