// backend/src/utils/http_utils.go
package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/logger"
)

// SendJSON writes data as a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		if logger.L != nil {
			logger.L.Error("Failed to encode JSON response", "error", err)
		}
	}
}

// SendJSONError is a helper function to send JSON formatted error responses.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if logger.L != nil { // Check if logger is initialized
		logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	}
	// Even if logger isn't ready, still try to send the error response
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// SendAppError maps a tagged core error onto the wire: HTTP status from its
// kind, plus the stable error code for the frontend. Insufficient-funds
// errors carry the balance and requested amount so the client can show both.
func SendAppError(w http.ResponseWriter, err error) {
	var fundsErr *apperrors.InsufficientFunds
	if errors.As(err, &fundsErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     fundsErr.Error(),
			"code":      "INSUFFICIENT_FUNDS",
			"balance":   fundsErr.Balance,
			"requested": fundsErr.Requested,
		})
		return
	}

	statusCode := http.StatusInternalServerError
	message := "internal server error"

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Msg
		switch appErr.Kind {
		case apperrors.KindValidation:
			statusCode = http.StatusBadRequest
		case apperrors.KindNotFound:
			statusCode = http.StatusNotFound
		case apperrors.KindForbidden:
			statusCode = http.StatusForbidden
		case apperrors.KindConflict:
			statusCode = http.StatusBadRequest
		case apperrors.KindUpstream:
			statusCode = http.StatusBadGateway
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if logger.L != nil {
			logger.L.Warn("Sending JSON error to client", "message", message, "code", appErr.Code, "statusCode", statusCode)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"error": message,
			"code":  appErr.Code,
		})
		return
	}

	if logger.L != nil {
		logger.L.Error("Unhandled internal error", "error", err)
	}
	SendJSONError(w, message, statusCode)
}
