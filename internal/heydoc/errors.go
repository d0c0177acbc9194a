package heydoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Field-error keys the backend uses when rejecting a booking.
const (
	FieldAppointmentTime = "appointment_time"
	FieldAppointmentDate = "appointment_date"
	FieldNonField        = "non_field_errors"
	FieldDetail          = "detail"
)

// FieldErrors maps a field name to its messages. The backend sends each
// value either as a string or as an array of strings.
type FieldErrors map[string][]string

// First returns the first message reported for field.
func (f FieldErrors) First(field string) (string, bool) {
	msgs, ok := f[field]
	if !ok || len(msgs) == 0 {
		return "", false
	}
	return msgs[0], true
}

// APIError is returned for every non-2xx backend response.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
	Fields     FieldErrors
}

func (e *APIError) Error() string {
	msg := e.Body
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return fmt.Sprintf("heydoc: %s returned %d: %s", e.Path, e.StatusCode, msg)
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == code
}

// parseFieldErrors extracts the structured error object from a response body.
// Bodies that are not a JSON object yield nil.
func parseFieldErrors(body []byte) FieldErrors {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	fields := make(FieldErrors, len(raw))
	for key, value := range raw {
		if msgs := errorMessages(value); len(msgs) > 0 {
			fields[key] = msgs
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func errorMessages(value json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var many []json.RawMessage
	if err := json.Unmarshal(value, &many); err == nil {
		out := make([]string, 0, len(many))
		for _, item := range many {
			out = append(out, errorMessages(item)...)
		}
		return out
	}
	return nil
}
