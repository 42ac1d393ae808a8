package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.CreatePool(Pool{
		ID:       "pool-1",
		Policy:   PasswordPolicy{MinLength: 8, RequireNumber: true},
		TokenTTL: time.Minute,
	}))
}

func TestSignUpSignInIssuesValidToken(t *testing.T) {
	e := NewEngine(nil)
	newTestPool(t, e)

	require.NoError(t, e.SignUp("pool-1", "alice", "secretp4ss", nil))
	require.NoError(t, e.ConfirmSignUp("pool-1", "alice"))

	res, err := e.SignIn("pool-1", "alice", "secretp4ss")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)

	sub, err := e.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", sub)
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	e := NewEngine(nil)
	newTestPool(t, e)
	require.NoError(t, e.SignUp("pool-1", "alice", "secretp4ss", nil))
	require.NoError(t, e.ConfirmSignUp("pool-1", "alice"))

	_, err := e.SignIn("pool-1", "alice", "wrongpass1")
	require.Error(t, err)
}

func TestSignUpEnforcesPasswordPolicy(t *testing.T) {
	e := NewEngine(nil)
	newTestPool(t, e)
	err := e.SignUp("pool-1", "bob", "short", nil)
	require.Error(t, err)
}

func TestRefreshTokenIssuesNewAccessToken(t *testing.T) {
	e := NewEngine(nil)
	newTestPool(t, e)
	require.NoError(t, e.SignUp("pool-1", "alice", "secretp4ss", nil))
	require.NoError(t, e.ConfirmSignUp("pool-1", "alice"))
	res, err := e.SignIn("pool-1", "alice", "secretp4ss")
	require.NoError(t, err)

	res2, err := e.RefreshTokens("pool-1", res.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, res2.AccessToken)
}

func TestForgotPasswordResetFlow(t *testing.T) {
	e := NewEngine(nil)
	newTestPool(t, e)
	require.NoError(t, e.SignUp("pool-1", "alice", "secretp4ss", nil))
	require.NoError(t, e.ConfirmSignUp("pool-1", "alice"))

	code, err := e.ForgotPassword("pool-1", "alice")
	require.NoError(t, err)

	require.NoError(t, e.ConfirmForgotPassword("pool-1", code, "newpassw0rd"))
	_, err = e.SignIn("pool-1", "alice", "secretp4ss")
	require.Error(t, err)
	_, err = e.SignIn("pool-1", "alice", "newpassw0rd")
	require.NoError(t, err)
}

func TestInstallAndLookupPrincipal(t *testing.T) {
	e := NewEngine(nil)
	principal := Principal{
		ARN: "arn:ldk:iam::local:user/dev",
		Policies: []Policy{{
			Effect:    "Allow",
			Actions:   []string{"kv:PutItem"},
			Resources: []string{"*"},
		}},
	}
	e.InstallPrincipal(principal)

	got, ok := e.Principal("arn:ldk:iam::local:user/dev")
	require.True(t, ok)
	require.Len(t, got.Policies, 1)
}
