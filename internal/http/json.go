package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
	apperrors "github.com/target/sessionauth/internal/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := http.StatusText(p.Code)
	if p.Err != nil {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": msg})
}

// errorParamsFor maps auth and application errors to a response. Internal
// failures keep a generic message so driver details do not leak to clients.
func errorParamsFor(err error, fallback string) ErrorParams {
	switch {
	case errors.Is(err, domainauth.ErrAccountNotLinked):
		return ErrorParams{Code: http.StatusConflict, ErrCode: "account_not_linked", Err: domainauth.ErrAccountNotLinked}
	case errors.Is(err, domainauth.ErrMalformedProfile):
		return ErrorParams{Code: http.StatusBadGateway, ErrCode: "malformed_profile", Err: domainauth.ErrMalformedProfile}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			return ErrorParams{Code: status, ErrCode: fallback, Err: errors.New(http.StatusText(status))}
		}
		return ErrorParams{Code: status, ErrCode: string(appErr.Code), Err: appErr}
	}
	return ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: fallback,
		Err:     errors.New(http.StatusText(http.StatusInternalServerError)),
	}
}
