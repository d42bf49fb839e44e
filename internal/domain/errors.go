package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrTerminalState  = errors.New("job already in terminal state")
	ErrBlobNotFound   = errors.New("blob not found")
	ErrNotReady       = errors.New("photo restoration not completed yet")
	ErrNoCredential   = errors.New("no provider credential configured")
	ErrNoImageInReply = errors.New("provider returned no image")
)

// ErrorKind classifies failures for callers.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindNoCredential      ErrorKind = "no_credential"
	KindNetworkError      ErrorKind = "network_error"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindNoImageGenerated  ErrorKind = "no_image_generated"
	KindProviderError     ErrorKind = "provider_error"
	KindNotFound          ErrorKind = "not_found"
	KindNotReady          ErrorKind = "not_ready"
	KindInternal          ErrorKind = "internal"
)

// Status returns the caller-facing HTTP status suggested for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidInput, KindNotReady:
		return http.StatusBadRequest
	case KindNetworkError:
		return http.StatusServiceUnavailable
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindInvalidCredential:
		return http.StatusForbidden
	case KindNoImageGenerated, KindProviderError:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ClassifiedError carries a failure kind, a human readable message and the
// underlying cause if any.
type ClassifiedError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

// NewError builds a ClassifiedError with the kind's default status.
func NewError(kind ErrorKind, msg string, cause error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: msg, StatusCode: kind.Status(), Err: cause}
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBlobNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrNoCredential):
		return KindNoCredential
	case errors.Is(err, ErrNoImageInReply):
		return KindNoImageGenerated
	}
	return KindInternal
}

// StatusOf returns the HTTP status a caller should see for err.
func StatusOf(err error) int {
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.StatusCode != 0 {
		return ce.StatusCode
	}
	return KindOf(err).Status()
}

// JobMessage renders the message recorded on a failed job. The result is
// always valid UTF-8 so it can be stored in a text column.
func JobMessage(err error) string {
	return strings.ToValidUTF8(jobMessage(err), "")
}

func jobMessage(err error) string {
	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		return fmt.Sprintf("Photo restoration failed: %v", err)
	}
	switch ce.Kind {
	case KindQuotaExceeded:
		return "AI provider quota exceeded: " + ce.Error() + ". Try again later or supply your own API key."
	case KindInvalidCredential:
		return "AI provider rejected the API key: " + ce.Error()
	case KindNetworkError:
		return "AI provider unreachable: " + ce.Error()
	case KindNoImageGenerated:
		return "AI provider returned no restored image: " + ce.Error()
	case KindNoCredential:
		return "No AI provider API key configured"
	default:
		return "Photo restoration failed: " + ce.Error()
	}
}
