package usecase

import "fmt"

type ErrorCode string

const (
	// ErrorValidation covers synchronous rejections: empty input, missing
	// identity, duplicate in-flight request. No state is mutated.
	ErrorValidation ErrorCode = "VALIDATION_REJECTED"
	// ErrorService is a failed remote answer call. It is converted to an
	// error turn inside Submit and never escapes that boundary; the code
	// exists for the session-open and settings paths.
	ErrorService ErrorCode = "SERVICE_FAILURE"
	// ErrorExtraction is a failed or malformed knowledge extraction; the
	// store is left untouched and the request may be retried.
	ErrorExtraction ErrorCode = "EXTRACTION_FAILURE"
	ErrorNotFound   ErrorCode = "NOT_FOUND"
	ErrorInternal   ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
