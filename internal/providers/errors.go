package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	openai "github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

var (
	// ErrUnknownModel means no backend is registered for the model.
	ErrUnknownModel = errors.New("unknown model")
	// ErrEmptyCompletion means the backend answered with no text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrCallTimeout marks a per-call deadline expiring, as opposed to the
	// caller cancelling.
	ErrCallTimeout = errors.New("backend call timed out")
)

// StatusError is a backend HTTP failure.
type StatusError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Backend, e.StatusCode, e.Message)
}

// RateLimitError is returned when a backend answers 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsTransient reports whether err is worth retrying: rate limiting,
// timeouts, connection failures and upstream 5xx errors. Cancellation by
// the caller is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCallTimeout) || errors.Is(err, ErrEmptyCompletion) {
		return true
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus(se.StatusCode)
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return transientStatus(oaErr.StatusCode)
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return transientStatus(gErr.Code)
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) {
		return transientStatus(gErrPtr.Code)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// mapOpenAIError turns SDK errors into the package's error types.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return &StatusError{Backend: OpenAIName, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}

// mapGeminiError turns genai API errors into the package's error types.
func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return &RateLimitError{
			Message:    fmt.Sprintf("Gemini rate limited: %s", apiErr.Message),
			StatusCode: apiErr.Code,
		}
	}
	return &StatusError{Backend: GeminiName, StatusCode: apiErr.Code, Message: apiErr.Message}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
