package exporter

import (
	"context"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType categorizes an export error for retry decisions and metrics.
type ErrorType string

const (
	// ErrorTypeNetwork covers connection-level failures (DNS, refused, reset).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout covers per-attempt deadline expiry.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeServer covers collector-side failures (5xx, gRPC internal).
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeRejected covers requests the collector refused as invalid (4xx).
	ErrorTypeRejected ErrorType = "rejected"
	// ErrorTypeAuth covers authentication and authorization failures.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeRateLimit covers throttling responses (429, ResourceExhausted).
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeUnknown covers everything else.
	ErrorTypeUnknown ErrorType = "unknown"
)

// ExportError is a classified error from a single export attempt.
type ExportError struct {
	// Err is the underlying transport error.
	Err error
	// Type is the classified category.
	Type ErrorType
	// StatusCode is the HTTP status code (0 for gRPC and network errors).
	StatusCode int
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("export error: type=%s status=%d", e.Type, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed on a later
// attempt. Collector rejections and auth failures are permanent: retrying
// them only burns the backoff budget.
func (e *ExportError) Retryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// classifyGRPC wraps a gRPC call error into an ExportError.
func classifyGRPC(err error) *ExportError {
	ee := &ExportError{Err: err, Type: ErrorTypeUnknown}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			ee.Type = ErrorTypeTimeout
		case codes.Unavailable, codes.Canceled:
			ee.Type = ErrorTypeNetwork
		case codes.Unauthenticated, codes.PermissionDenied:
			ee.Type = ErrorTypeAuth
		case codes.ResourceExhausted:
			ee.Type = ErrorTypeRateLimit
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			ee.Type = ErrorTypeRejected
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Aborted:
			ee.Type = ErrorTypeServer
		}
		if ee.Type != ErrorTypeUnknown {
			return ee
		}
	}
	ee.Type = classifyGeneric(err)
	return ee
}

// classifyHTTPStatus wraps a non-success HTTP response into an ExportError.
func classifyHTTPStatus(statusCode int) *ExportError {
	ee := &ExportError{
		Err:        fmt.Errorf("unexpected status code: %d", statusCode),
		StatusCode: statusCode,
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		ee.Type = ErrorTypeAuth
	case statusCode == 429:
		ee.Type = ErrorTypeRateLimit
	case statusCode >= 400 && statusCode < 500:
		ee.Type = ErrorTypeRejected
	case statusCode >= 500:
		ee.Type = ErrorTypeServer
	default:
		ee.Type = ErrorTypeUnknown
	}
	return ee
}

// classifyTransport wraps an HTTP client error (no response) into an ExportError.
func classifyTransport(err error) *ExportError {
	return &ExportError{Err: err, Type: classifyGeneric(err)}
}

// classifyGeneric categorizes an arbitrary error by inspecting well-known
// error types first and falling back to message patterns.
func classifyGeneric(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if netErr, ok := err.(net.Error); ok {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}
	if err == context.DeadlineExceeded {
		return ErrorTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}
