package phone

import (
	"context"
	"time"

	"github.com/aelexs/authkit/internal/domain"
)

// Credential binds a backend verification ID to a code. It proves ownership
// of the phone number the code was sent to.
type Credential struct {
	VerificationID string
	Code           string
	// AutoRetrieved is set when the device read the code without user input.
	AutoRetrieved bool
}

// NewCredential builds a credential for a code the user entered.
func NewCredential(verificationID, code string) Credential {
	return Credential{VerificationID: verificationID, Code: code}
}

// VerifyOptions parameterizes a code dispatch.
type VerifyOptions struct {
	PhoneNumber string
	// Timeout bounds automatic code retrieval on the device.
	Timeout time.Duration
	// ResendToken is empty unless the same number is being resent to.
	ResendToken domain.SecretString
}

// Callbacks receive the outcome of a dispatch. Any of them may run before
// VerifyPhoneNumber returns or later on another goroutine.
type Callbacks struct {
	OnCodeSent              func(verificationID string, resendToken domain.SecretString)
	OnVerificationCompleted func(cred Credential)
	OnVerificationFailed    func(err error)
}

// Verifier starts phone number verification on the backend.
type Verifier interface {
	// VerifyPhoneNumber requests a code for opts.PhoneNumber. An error means
	// the request could not be started; later failures go to
	// cb.OnVerificationFailed.
	VerifyPhoneNumber(ctx context.Context, opts VerifyOptions, cb Callbacks) error
}

// Account is the backend account a credential signed in to.
type Account struct {
	UID         string
	DisplayName string
	// CreatedNow reports whether this sign-in created the account.
	CreatedNow bool
}

// Exchanger turns credentials into a signed-in account and session tokens.
type Exchanger interface {
	SignIn(ctx context.Context, cred Credential) (*Account, error)
	// LinkCredential attaches cred to the account. Callers treat failure as
	// non-fatal.
	LinkCredential(ctx context.Context, uid string, cred Credential) error
	IDToken(ctx context.Context, uid string, forceRefresh bool) (string, error)
	SignOut(ctx context.Context) error
}

// Backend is a complete phone identity backend.
type Backend interface {
	Verifier
	Exchanger
}
