package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"pulse/internal/service"
)

const maxBodyBytes = 1 << 20

// retryAfterSeconds is advertised on 503 responses
const retryAfterSeconds = 1

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, reason service.Reason) {
	writeJSON(w, status, ErrorResponse{Error: message, Reason: string(reason)})
}

// writeServiceError maps a classified service failure onto an HTTP status. Store failures
// never leak their cause.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if svcErr.Kind == service.KindStoreUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeError(w, statusFor(svcErr), svcErr.Message, svcErr.Reason)
}

func statusFor(err *service.Error) int {
	switch err.Kind {
	case service.KindValidation:
		if isAnswerReason(err.Reason) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case service.KindAuthorization:
		if err.Reason == service.ReasonUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isAnswerReason reports reasons about an individual answer rather than the request shape
func isAnswerReason(r service.Reason) bool {
	switch r {
	case service.ReasonUnknownQuestion, service.ReasonDuplicateAnswer, service.ReasonKindMismatch,
		service.ReasonInvalidOption, service.ReasonOutOfRange, service.ReasonMissingRequired,
		service.ReasonTextTooLong:
		return true
	}
	return false
}

// decodeJSON reads a size-limited JSON body into dst and validates its shape
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
		} else if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, msg, service.ReasonInvalidBody)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), service.ReasonInvalidBody)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
	}
	return "invalid request body"
}
