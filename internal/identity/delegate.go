package identity

import (
	"context"

	"github.com/aelexs/authkit/internal/auth/delegated"
	"github.com/aelexs/authkit/internal/auth/phone"
	"github.com/aelexs/authkit/internal/domain"
)

// DelegatedAuthenticator adapts the service to the delegated provider. It
// dispatches a code and returns the verification ID as the auth key once
// the code is out.
func (s *Service) DelegatedAuthenticator() delegated.Authenticator {
	return func(ctx context.Context, phoneNumber string) (string, error) {
		sent := make(chan string, 1)
		failed := make(chan error, 1)

		err := s.VerifyPhoneNumber(ctx, phone.VerifyOptions{PhoneNumber: phoneNumber}, phone.Callbacks{
			OnCodeSent:              func(verificationID string, _ domain.SecretString) { sent <- verificationID },
			OnVerificationCompleted: func(phone.Credential) {},
			OnVerificationFailed:    func(err error) { failed <- err },
		})
		if err != nil {
			return "", err
		}

		select {
		case verificationID := <-sent:
			return verificationID, nil
		case err := <-failed:
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// DelegatedConfirmator signs in with the auth key and code and returns a
// fresh ID token.
func (s *Service) DelegatedConfirmator() delegated.Confirmator {
	return func(ctx context.Context, authKey, code string) (string, error) {
		account, err := s.SignIn(ctx, phone.NewCredential(authKey, code))
		if err != nil {
			return "", err
		}
		return s.IDToken(ctx, account.UID, true)
	}
}
