package exporter

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyGRPC(t *testing.T) {
	tests := []struct {
		code codes.Code
		want ErrorType
	}{
		{codes.DeadlineExceeded, ErrorTypeTimeout},
		{codes.Unavailable, ErrorTypeNetwork},
		{codes.Canceled, ErrorTypeNetwork},
		{codes.Unauthenticated, ErrorTypeAuth},
		{codes.PermissionDenied, ErrorTypeAuth},
		{codes.ResourceExhausted, ErrorTypeRateLimit},
		{codes.InvalidArgument, ErrorTypeRejected},
		{codes.Internal, ErrorTypeServer},
		{codes.DataLoss, ErrorTypeServer},
	}
	for _, tt := range tests {
		err := status.Error(tt.code, "boom")
		ee := classifyGRPC(err)
		if ee.Type != tt.want {
			t.Errorf("code %s: expected %s, got %s", tt.code, tt.want, ee.Type)
		}
		if !errors.Is(ee, err) {
			t.Errorf("code %s: expected wrapped error preserved", tt.code)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{400, ErrorTypeRejected},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeRejected},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServer},
		{503, ErrorTypeServer},
	}
	for _, tt := range tests {
		ee := classifyHTTPStatus(tt.status)
		if ee.Type != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, ee.Type)
		}
		if ee.StatusCode != tt.status {
			t.Errorf("status %d: code not recorded", tt.status)
		}
	}
}

func TestClassifyGenericPatterns(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{errors.New("dial tcp 127.0.0.1:4317: connect: connection refused"), ErrorTypeNetwork},
		{errors.New("lookup collector.invalid: no such host"), ErrorTypeNetwork},
		{errors.New("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{errors.New("i/o timeout"), ErrorTypeTimeout},
		{context.DeadlineExceeded, ErrorTypeTimeout},
		{errors.New("something odd"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		if got := classifyGeneric(tt.err); got != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeUnknown}
	for _, typ := range retryable {
		ee := &ExportError{Err: errors.New("x"), Type: typ}
		if !ee.Retryable() {
			t.Errorf("expected %s to be retryable", typ)
		}
	}
	permanent := []ErrorType{ErrorTypeRejected, ErrorTypeAuth}
	for _, typ := range permanent {
		ee := &ExportError{Err: errors.New("x"), Type: typ}
		if ee.Retryable() {
			t.Errorf("expected %s to be permanent", typ)
		}
	}
}
