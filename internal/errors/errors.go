// Package errors provides unified error handling with structured error codes.
// Codes travel over gRPC as errdetails.ErrorInfo reasons, so a remote caller sees the same
// taxonomy as a local one.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain identifies this service in ErrorInfo details.
const Domain = "fakedetector"

// Code classifies an AppError.
type Code string

const (
	CodeUnknown                   Code = "UNKNOWN"
	CodeInternal                  Code = "INTERNAL"
	CodeInvalidArgument           Code = "INVALID_ARGUMENT"
	CodeNotFound                  Code = "NOT_FOUND"
	CodeUnavailable               Code = "UNAVAILABLE"
	CodeTimeout                   Code = "TIMEOUT"
	CodeCancelled                 Code = "CANCELLED"
	CodeConfigInvalid             Code = "CONFIG_INVALID"
	CodeIndexBuildFailed          Code = "INDEX_BUILD_FAILED"
	CodeFrameExtractionFailed     Code = "FRAME_EXTRACTION_FAILED"
	CodeDurationProbeFailed       Code = "DURATION_PROBE_FAILED"
	CodeFingerprintFailed         Code = "FINGERPRINT_FAILED"
	CodeFingerprintLengthMismatch Code = "FINGERPRINT_LENGTH_MISMATCH"
)

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:                   codes.Unknown,
	CodeInternal:                  codes.Internal,
	CodeInvalidArgument:           codes.InvalidArgument,
	CodeNotFound:                  codes.NotFound,
	CodeUnavailable:               codes.Unavailable,
	CodeTimeout:                   codes.DeadlineExceeded,
	CodeCancelled:                 codes.Canceled,
	CodeConfigInvalid:             codes.InvalidArgument,
	CodeIndexBuildFailed:          codes.FailedPrecondition,
	CodeFrameExtractionFailed:     codes.Internal,
	CodeDurationProbeFailed:       codes.Internal,
	CodeFingerprintFailed:         codes.Internal,
	CodeFingerprintLengthMismatch: codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail attached.
// status.FromError picks this up automatically for handlers returning *AppError.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	info := &errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   Domain,
		Metadata: e.Metadata,
	}
	if withDetails, err := st.WithDetails(info); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{
				Code:     Code(info.GetReason()),
				Message:  st.Message(),
				Metadata: info.GetMetadata(),
			}
		}
	}

	// Fallback: map gRPC code to our error code
	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message()}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the outermost AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode reports whether any AppError in err's chain has the given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
// Setup errors (length mismatch, invalid config) never are.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}
