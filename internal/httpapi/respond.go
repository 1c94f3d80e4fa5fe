package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: msg})
}

// writeServiceError maps service errors onto statuses. Storage and
// unexpected errors are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errs.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		s.logger.Debug("request cancelled", zap.String("path", r.URL.Path))
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

// decodeJSON reads a size-capped JSON body into v and validates its struct
// tags. Errors wrap errs.ErrValidation.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errs.ErrValidation)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", jsonName(fe))
	case "email":
		return fmt.Sprintf("%s must be an email address", jsonName(fe))
	default:
		return fmt.Sprintf("%s failed %s validation", jsonName(fe), fe.Tag())
	}
}

var fieldNames = map[string]string{
	"EmailAddress": "email_address",
	"RFIDID":       "rfid_id",
	"StartDTStamp": "start_dt_stamp",
	"EndDTStamp":   "end_dt_stamp",
}

func jsonName(fe validator.FieldError) string {
	if n, ok := fieldNames[fe.StructField()]; ok {
		return n
	}
	return fe.Field()
}
