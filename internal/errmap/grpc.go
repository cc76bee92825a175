// Package errmap maps domain errors to and from gRPC status codes, the
// transport convention the identity backend uses to report failures.
package errmap

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aelexs/authkit/internal/domain"
)

// grpcMappings maps domain errors to gRPC status codes.
// Order matters: first match wins (via errors.Is).
//
// Mapping follows gRPC status codes reference:
// https://grpc.github.io/grpc/core/md_doc_statuscodes.html
var grpcMappings = []struct {
	err  error
	code codes.Code
}{
	// Resource errors
	{domain.ErrNotFound, codes.NotFound},
	{domain.ErrAlreadyExists, codes.AlreadyExists},
	{domain.ErrAccountConflict, codes.AlreadyExists},
	{domain.ErrRequestCodeConflict, codes.AlreadyExists},

	// Auth errors
	{domain.ErrAuthorizationFailure, codes.Unauthenticated},

	// Validation errors
	{domain.ErrInvalidInput, codes.InvalidArgument},
	{domain.ErrInvalidPhoneNumber, codes.InvalidArgument},
	{domain.ErrWrongCode, codes.InvalidArgument},

	// Rate limiting
	{domain.ErrRateLimited, codes.ResourceExhausted},

	// Wiring errors
	{domain.ErrProviderNotConfigured, codes.FailedPrecondition},
	{domain.ErrProviderTypeMismatch, codes.FailedPrecondition},
	{domain.ErrConfigRequired, codes.FailedPrecondition},

	// Availability
	{domain.ErrCancelled, codes.Canceled},
	{domain.ErrNetwork, codes.Unavailable},
	{domain.ErrUnavailable, codes.Unavailable},
}

// ToGRPCStatus converts a domain error to a gRPC status.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	for _, m := range grpcMappings {
		if errors.Is(err, m.err) {
			return status.New(m.code, err.Error())
		}
	}
	// Never expose internal error details to clients
	return status.New(codes.Internal, "internal error")
}

// ToGRPCError converts a domain error to a gRPC error (implements error interface).
func ToGRPCError(err error) error {
	return ToGRPCStatus(err).Err()
}

// FromGRPCError extracts the gRPC status code from an error.
// Returns codes.Unknown if the error is not a gRPC status error.
func FromGRPCError(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
