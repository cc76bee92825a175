package auth

// LoginRequest selects what a Login call does. Providers ignore variants they
// do not understand.
type LoginRequest interface {
	isLoginRequest()
}

// SendCode asks a phone provider to dispatch a verification code. Sending the
// same Phone again is a resend; a different Phone starts over. A non-empty
// Username marks the attempt as a registration.
type SendCode struct {
	Phone    string
	Username string
}

// ConfirmCode submits the code the user received.
type ConfirmCode struct {
	Code string
}

// SignIn starts a provider that needs no parameters, such as federated
// sign-in.
type SignIn struct{}

func (SendCode) isLoginRequest()    {}
func (ConfirmCode) isLoginRequest() {}
func (SignIn) isLoginRequest()      {}
