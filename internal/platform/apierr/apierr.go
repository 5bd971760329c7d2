package apierr

import "fmt"

const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeCategoryBusy      = "category_busy"
	CodeIntegrityViolated = "integrity_violated"
	CodeInternal          = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Retryable reports whether the caller should back off and retry with the
// same payload rather than surface a failure.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == CodeCategoryBusy
}
