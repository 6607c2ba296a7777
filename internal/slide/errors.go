package slide

// ErrorCode enumerates the failure classes of the pipeline.
type ErrorCode string

const (
	// ErrMalformedInput indicates invalid or missing page geometry. Fatal
	// for the page; the run continues with the page marked failed.
	ErrMalformedInput ErrorCode = "MALFORMED_INPUT"
	// ErrVisionUnavailable indicates the vision API failed, timed out, or
	// stayed rate-limited past the retry budget. Recoverable: the page is
	// arbitrated geometry-only.
	ErrVisionUnavailable ErrorCode = "VISION_UNAVAILABLE"
	// ErrPDFNotFound indicates the input file does not exist.
	ErrPDFNotFound ErrorCode = "PDF_NOT_FOUND"
	// ErrPDFInvalid indicates the input is not a readable PDF.
	ErrPDFInvalid ErrorCode = "PDF_INVALID"
	// ErrRenderFailed indicates page-to-image rendering failed.
	ErrRenderFailed ErrorCode = "RENDER_FAILED"
	// ErrWriteFailed indicates the layout handoff could not be persisted.
	ErrWriteFailed ErrorCode = "WRITE_FAILED"
	// ErrCancelled indicates the run was cancelled by the caller.
	ErrCancelled ErrorCode = "CANCELLED"
)

// SlideError is the typed error carried through the pipeline.
type SlideError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Page    int       `json:"page,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for SlideError
func (e *SlideError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *SlideError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SlideError with the given code, message, and
// optional cause
func NewError(code ErrorCode, message string, cause error) *SlideError {
	return &SlideError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewErrorWithDetails creates a new SlideError with details
func NewErrorWithDetails(code ErrorCode, message, details string, cause error) *SlideError {
	return &SlideError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewErrorWithPage creates a new SlideError attached to a page index
func NewErrorWithPage(code ErrorCode, message string, page int, cause error) *SlideError {
	return &SlideError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// CodeOf extracts the ErrorCode from an error, or empty when the error is
// not a SlideError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if se, ok := err.(*SlideError); ok {
		return se.Code
	}
	return ""
}
