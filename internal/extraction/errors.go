package extraction

import (
	"errors"
	"fmt"
)

// ExtractionErrorCode represents specific pipeline error types.
type ExtractionErrorCode string

const (
	ErrInvalidPeriod       ExtractionErrorCode = "INVALID_PERIOD"
	ErrInvalidRequest      ExtractionErrorCode = "INVALID_REQUEST"
	ErrInvalidDocument     ExtractionErrorCode = "INVALID_DOCUMENT"
	ErrModelUnavailable    ExtractionErrorCode = "MODEL_UNAVAILABLE"
	ErrModelRateLimited    ExtractionErrorCode = "MODEL_RATE_LIMITED"
	ErrModelEmptyResponse  ExtractionErrorCode = "MODEL_EMPTY_RESPONSE"
	ErrMalformedResponse   ExtractionErrorCode = "MALFORMED_RESPONSE"
	ErrNoTransactionsFound ExtractionErrorCode = "NO_TRANSACTIONS_FOUND"
)

// ExtractionError is a structured error for pipeline failures.
type ExtractionError struct {
	Code      ExtractionErrorCode `json:"code"`
	Message   string              `json:"message"`
	Method    string              `json:"method,omitempty"` // e.g. "gemini" or "period"
	Retryable bool                `json:"retryable"`
	Cause     error               `json:"-"`
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *ExtractionError) IsRetryable() bool {
	return e.Retryable
}

// IsParameterError reports whether err is a caller mistake rather than a
// model or data failure.
func IsParameterError(err error) bool {
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		return false
	}
	switch extErr.Code {
	case ErrInvalidPeriod, ErrInvalidRequest, ErrInvalidDocument:
		return true
	}
	return false
}

func invalidPeriod(format string, args ...any) *ExtractionError {
	return &ExtractionError{
		Code:    ErrInvalidPeriod,
		Message: fmt.Sprintf(format, args...),
		Method:  "period",
	}
}
