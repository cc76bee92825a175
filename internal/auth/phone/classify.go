package phone

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/errmap"
)

// networkErrorMarker appears in backend messages for transport failures that
// carry no typed error.
const networkErrorMarker = "[ 7: ]"

type phase int

const (
	phaseDispatch phase = iota
	phaseConfirm
)

func (p phase) String() string {
	if p == phaseConfirm {
		return "confirm"
	}
	return "dispatch"
}

// classify turns a failure into the terminal Result of an attempt. Dispatch
// failures concern the number or quota; confirmation failures are reported as
// a wrong code unless the network is at fault.
func classify(ctx context.Context, p phase, err error) auth.Result {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
		return auth.Cancellation{}
	}

	if p == phaseConfirm {
		if isNetwork(err) {
			return auth.NewError(domain.ErrNetwork, err)
		}
		return auth.NewError(domain.ErrWrongCode, err)
	}

	switch {
	case isInvalidPhone(err):
		return auth.NewError(domain.ErrInvalidPhoneNumber, err)
	case isRateLimited(err):
		return auth.NewError(domain.ErrRateLimited, err)
	case isNetwork(err):
		return auth.NewError(domain.ErrNetwork, err)
	default:
		return auth.NewError(domain.ErrAuthorizationFailure, err)
	}
}

func isInvalidPhone(err error) bool {
	return errors.Is(err, domain.ErrInvalidPhoneNumber) ||
		errmap.FromGRPCError(err) == codes.InvalidArgument
}

func isRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) ||
		errmap.FromGRPCError(err) == codes.ResourceExhausted
}

func isNetwork(err error) bool {
	if errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch errmap.FromGRPCError(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), networkErrorMarker)
}
