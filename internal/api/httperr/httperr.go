// Package httperr renders JSON responses and maps scheduling errors to HTTP
// status codes.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Body is the error envelope returned by every handler.
type Body struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// JSON writes payload with status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Write sends a JSON error envelope.
func Write(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Body{Error: http.StatusText(status), Code: code, Message: message})
}

// BadRequest is shorthand for a 400 validation_error.
func BadRequest(w http.ResponseWriter, message string) {
	Write(w, http.StatusBadRequest, string(scheduling.ValidationError), message)
}

// Status maps err to an HTTP status and error code.
func Status(err error) (int, string) {
	var ae *scheduling.AvailabilityError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, "internal_error"
	}
	switch ae.Kind {
	case scheduling.ValidationError:
		return http.StatusUnprocessableEntity, string(ae.Kind)
	case scheduling.ConfigurationError:
		return http.StatusConflict, string(ae.Kind)
	case scheduling.SlotTaken:
		return http.StatusConflict, string(ae.Kind)
	case scheduling.NotFound:
		return http.StatusNotFound, string(ae.Kind)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Error writes err using Status. Internal errors are logged and their text is
// not sent to the client.
func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	status, code := Status(err)
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("request failed", "error", err)
		Write(w, status, code, "")
		return
	}
	Write(w, status, code, err.Error())
}
