package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/service"
)

// maxRequestBody caps submission bodies.
const maxRequestBody = 1 << 20

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// DecodeJSON strictly decodes a single JSON value from the request body into dst. On failure
// it writes the error response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("request body must contain a single JSON value")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, ErrorParams{
			Code:    http.StatusRequestEntityTooLarge,
			ErrCode: "body_too_large",
			Err:     fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return false
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
	return false
}

// WriteJSON encodes v before touching the response so an encoding failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes an errorBody with status p.Code.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// WriteServiceError maps err to a status and error code and writes it.
func WriteServiceError(w http.ResponseWriter, err error) {
	WriteError(w, classifyError(err))
}

// sentinelErrors maps service and model sentinels onto application error codes.
var sentinelErrors = []struct {
	target error
	code   apperrors.ErrorCode
}{
	{model.ErrInvalidJob, apperrors.ErrCodeValidation},
	{service.ErrJobNotFound, apperrors.ErrCodeNotFound},
	{service.ErrQueueClosed, apperrors.ErrCodeUnavailable},
}

func classifyError(err error) ErrorParams {
	if appErr, ok := apperrors.As(err); ok {
		return ErrorParams{Code: appErr.HTTPStatus(), ErrCode: string(appErr.Code), Err: err, Field: appErr.Field}
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.target) {
			ae := &apperrors.AppError{Code: s.code}
			return ErrorParams{Code: ae.HTTPStatus(), ErrCode: string(s.code), Err: err}
		}
	}
	return ErrorParams{Code: http.StatusInternalServerError, ErrCode: string(apperrors.ErrCodeInternal), Err: err}
}
