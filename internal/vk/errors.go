package vk

import (
	"errors"
	"fmt"
	"time"
)

// VK API error codes this client reacts to.
const (
	codeAuthFailed      = 5
	codeTooManyRequests = 6
)

// APIError is an error payload returned by the VK API itself, as opposed to
// a transport failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// IsAuthFailure reports whether the error indicates invalid or expired
// credentials. The tracker responds by re-authenticating.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeAuthFailed
}

// IsRateLimited reports whether the error is the VK "too many requests"
// signal. The tracker cools down and continues the same tick.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeTooManyRequests
}

// RateLimitCooldown is the pause applied after a rate-limit signal; VK does
// not supply a retry-after hint.
const RateLimitCooldown = 10 * time.Second
