package delegated_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/auth/delegated"
	"github.com/aelexs/authkit/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testHarness struct {
	provider *delegated.Provider
	results  *auth.Subscription
	sent     atomic.Int32
}

func newTestHarness(t *testing.T, cfg delegated.Config) *testHarness {
	t.Helper()
	h := &testHarness{provider: delegated.New(cfg)}
	h.provider.Init(auth.InitConfig{SMSListener: auth.SMSListenerFuncs{
		Sent: func() { h.sent.Add(1) },
	}})
	h.results = h.provider.Results().Subscribe()
	t.Cleanup(func() {
		h.provider.Wait()
		h.results.Close()
	})
	return h
}

func (h *testHarness) nextResult(t *testing.T) auth.Result {
	t.Helper()
	select {
	case res := <-h.results.C():
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}

func TestSendThenConfirm(t *testing.T) {
	var gotPhone, gotKey, gotCode string
	h := newTestHarness(t, delegated.Config{
		Authenticator: func(_ context.Context, phone string) (string, error) {
			gotPhone = phone
			return "key-1", nil
		},
		Confirmator: func(_ context.Context, key, code string) (string, error) {
			gotKey, gotCode = key, code
			return "DT1", nil
		},
	})
	ctx := context.Background()

	h.provider.Login(ctx, auth.SendCode{Phone: "+15551234567"})
	h.provider.Wait()
	assert.Equal(t, "+15551234567", gotPhone)
	assert.Equal(t, int32(1), h.sent.Load())

	h.provider.Login(ctx, auth.ConfirmCode{Code: "1234"})
	assert.Equal(t, auth.Success{Token: "DT1"}, h.nextResult(t))
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "1234", gotCode)
}

func TestNotConfigured(t *testing.T) {
	h := newTestHarness(t, delegated.Config{})
	ctx := context.Background()

	h.provider.Login(ctx, auth.SendCode{Phone: "+15551234567"})
	res, ok := h.nextResult(t).(*auth.Error)
	require.True(t, ok)
	assert.ErrorIs(t, res, domain.ErrProviderNotConfigured)

	h.provider.Login(ctx, auth.ConfirmCode{Code: "1234"})
	res, ok = h.nextResult(t).(*auth.Error)
	require.True(t, ok)
	assert.ErrorIs(t, res, domain.ErrProviderNotConfigured)
}

func TestLateInstall(t *testing.T) {
	h := newTestHarness(t, delegated.Config{})
	h.provider.SetAuthenticator(func(context.Context, string) (string, error) { return "k", nil })
	h.provider.SetConfirmator(func(context.Context, string, string) (string, error) { return "DT2", nil })
	ctx := context.Background()

	h.provider.Login(ctx, auth.SendCode{Phone: "+15551234567"})
	h.provider.Wait()
	h.provider.Login(ctx, auth.ConfirmCode{Code: "0000"})

	assert.Equal(t, auth.Success{Token: "DT2"}, h.nextResult(t))
}

func TestSendFailure(t *testing.T) {
	h := newTestHarness(t, delegated.Config{
		Authenticator: func(context.Context, string) (string, error) {
			return "", fmt.Errorf("call backend: %w", domain.ErrRateLimited)
		},
	})

	h.provider.Login(context.Background(), auth.SendCode{Phone: "+15551234567"})

	res, ok := h.nextResult(t).(*auth.Error)
	require.True(t, ok)
	assert.ErrorIs(t, res, domain.ErrRateLimited)
	assert.Equal(t, int32(0), h.sent.Load())
}

func TestConfirmFailures(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		err      error
		wantKind error
		wantMsg  string
	}{
		{"backend message kept", "", errors.New("code mismatch"), domain.ErrWrongCode, "code mismatch"},
		{"network", "", domain.ErrUnavailable, domain.ErrNetwork, "network error"},
		{"empty token", "", nil, domain.ErrAuthorizationFailure, "Got empty token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t, delegated.Config{
				Confirmator: func(context.Context, string, string) (string, error) {
					return tt.token, tt.err
				},
			})

			h.provider.Login(context.Background(), auth.ConfirmCode{Code: "0000"})

			res, ok := h.nextResult(t).(*auth.Error)
			require.True(t, ok)
			assert.ErrorIs(t, res, tt.wantKind)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}
}

func TestHandleExternalResult(t *testing.T) {
	h := newTestHarness(t, delegated.Config{
		Confirmator: func(context.Context, string, string) (string, error) { return "DT3", nil },
	})
	ctx := context.Background()

	assert.False(t, h.provider.HandleExternalResult(ctx, auth.ExternalResult{
		RequestCode: domain.RequestCodePhone,
		Data:        map[string]string{auth.DataSMSCode: "0000"},
	}))
	assert.False(t, h.provider.HandleExternalResult(ctx, auth.ExternalResult{
		RequestCode: domain.RequestCodeDelegatedPhone,
	}))
	assert.True(t, h.provider.HandleExternalResult(ctx, auth.ExternalResult{
		RequestCode: domain.RequestCodeDelegatedPhone,
		Data:        map[string]string{auth.DataSMSCode: "0000"},
	}))
	assert.Equal(t, auth.Success{Token: "DT3"}, h.nextResult(t))
}

func TestDestroyForgetsKey(t *testing.T) {
	var gotKey atomic.Value
	h := newTestHarness(t, delegated.Config{
		Authenticator: func(context.Context, string) (string, error) { return "key-1", nil },
		Confirmator: func(_ context.Context, key, _ string) (string, error) {
			gotKey.Store(key)
			return "DT4", nil
		},
	})
	ctx := context.Background()

	h.provider.Login(ctx, auth.SendCode{Phone: "+15551234567"})
	h.provider.Wait()
	h.provider.Destroy()
	h.provider.Destroy()

	h.provider.Login(ctx, auth.ConfirmCode{Code: "0000"})
	h.nextResult(t)
	assert.Equal(t, "", gotKey.Load())
}
