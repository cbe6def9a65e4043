package fineract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNetwork wraps transport failures (DNS, refused connections, timeouts).
var ErrNetwork = errors.New("fineract unreachable")

const (
	CategoryNetwork    = "network"
	CategoryServer     = "server"
	CategoryClient     = "client"
	CategoryValidation = "validation"
	CategoryCancelled  = "cancelled"
	CategoryUnknown    = "unknown"
)

type FieldError struct {
	ParameterName      string `json:"parameterName"`
	DefaultUserMessage string `json:"defaultUserMessage"`
	DeveloperMessage   string `json:"developerMessage"`
}

// APIError is a non-2xx answer from Fineract.
type APIError struct {
	StatusCode         int          `json:"httpStatusCode"`
	DefaultUserMessage string       `json:"defaultUserMessage"`
	DeveloperMessage   string       `json:"developerMessage"`
	Errors             []FieldError `json:"errors"`
	Body               string       `json:"-"`
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.DefaultUserMessage)
	if len(e.Errors) > 0 && strings.TrimSpace(e.Errors[0].DefaultUserMessage) != "" {
		msg = strings.TrimSpace(e.Errors[0].DefaultUserMessage)
	}
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	return fmt.Sprintf("fineract api error %d: %s", e.StatusCode, msg)
}

// IsNotFound reports whether err is a 404 from Fineract.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Category maps an error to the coarse buckets failures are recorded under.
func Category(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryCancelled
	}
	if errors.Is(err, ErrNetwork) {
		return CategoryNetwork
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500:
			return CategoryServer
		case apiErr.StatusCode == http.StatusBadRequest && len(apiErr.Errors) > 0:
			return CategoryValidation
		default:
			return CategoryClient
		}
	}
	return CategoryUnknown
}
