package api

import (
	"net/http"

	"kalshorb/pkg/kalshorb"
)

// Response wraps a successful payload.
type Response struct {
	Data any `json:"data"`
}

// ErrorBody is the single error shape returned to clients.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// writeSuccess writes a 200 response with data.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

// writeError writes the public error shape and records message for the
// request log.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	noteError(r, message)
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    kalshorb.PublicErrorCode,
		Message: message,
	}})
}

// writeErrorResponse maps err's classification to an HTTP status.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, mapErrorCodeToHTTPStatus(kalshorb.CodeOf(err)), err.Error())
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code kalshorb.ErrorCode) int {
	switch code {
	case kalshorb.ErrCodeInvalidInput, kalshorb.ErrCodeUnknownAction:
		return http.StatusBadRequest
	case kalshorb.ErrCodeUpstream:
		return http.StatusBadGateway
	case kalshorb.ErrCodeNotConfigured:
		return http.StatusServiceUnavailable
	case kalshorb.ErrCodeStorage, kalshorb.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
