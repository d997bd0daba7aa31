package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeBody parses and validates a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid_request_body", "could not parse JSON")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return apperr.Validation("validation_failed", "invalid fields: "+strings.Join(fields, ", "))
		}
		return apperr.Validation("validation_failed", err.Error())
	}
	return nil
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps an apperr kind to its HTTP status. Internal errors
// are logged and never echoed to the caller.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindDelivery {
		loggerFrom(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
		return
	}

	status := statusFor(appErr.Kind)
	if status == http.StatusServiceUnavailable {
		loggerFrom(r.Context()).Warn("dependency unavailable", zap.Error(err))
	}
	writeError(w, status, appErr.Code, appErr.Message)
}
