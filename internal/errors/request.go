package errors

import "fmt"

// RequestCode classifies client input errors.
type RequestCode string

const (
	// BadPayload covers empty bodies, malformed JSON and failed validation.
	BadPayload RequestCode = "BAD_PAYLOAD"
)

// RequestError is a client-input error; it always maps to a 4xx response.
type RequestError struct {
	Code    RequestCode
	Message string
	Fields  []ValidationError
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NewBadPayload wraps err as a BadPayload request error.
func NewBadPayload(message string, err error) *RequestError {
	return &RequestError{Code: BadPayload, Message: message, Err: err}
}
