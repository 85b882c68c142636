package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, "job not found", (&AppError{Code: ErrCodeNotFound, Message: "job not found"}).Error())
	assert.Equal(t, "failed to archive: disk full",
		Wrap(errors.New("disk full"), ErrCodeInternal, "failed to archive").Error())
}

func TestAppErrorChain(t *testing.T) {
	cause := errors.New("underlying error")
	err := fmt.Errorf("outer: %w", Wrap(cause, ErrCodeUnavailable, "wrapped"))

	require.ErrorIs(t, err, cause)
	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "wrapped", appErr.Message)
	assert.Equal(t, ErrCodeUnavailable, GetCode(err))

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestConstructors(t *testing.T) {
	nf := NotFoundf("job %s not found", "j1")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Equal(t, "job j1 not found", nf.Message)

	v := ValidationField("status", "unknown status")
	assert.True(t, IsValidation(fmt.Errorf("parse: %w", v)))
	assert.Equal(t, "status", v.Field)

	assert.Equal(t, ErrCodeUnavailable, Unavailable("archive disabled").Code)
	assert.False(t, IsValidation(Unavailable("x")))
}

func TestAppErrorHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeNotFound:    http.StatusNotFound,
		ErrCodeConflict:    http.StatusConflict,
		ErrCodeValidation:  http.StatusBadRequest,
		ErrCodeUnavailable: http.StatusServiceUnavailable,
		ErrCodeTimeout:     http.StatusGatewayTimeout,
		ErrCodeCanceled:    499,
		ErrCodeInternal:    http.StatusInternalServerError,
		ErrorCode("other"): http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, (&AppError{Code: code}).HTTPStatus(), code)
	}
}
