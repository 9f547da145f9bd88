package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/auth"
	"erp-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, env *testEnv, email, password string) *models.LoginResponse {
	t.Helper()
	resp, err := env.auth.Login(context.Background(), &models.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	return resp
}

func currentCode(t *testing.T, env *testEnv, secret string) string {
	t.Helper()
	code, err := env.auth.TOTP.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code that differs from code in every digit.
func wrongCode(code string) string {
	b := []byte(code)
	for i := range b {
		b[i] = '0' + (b[i]-'0'+5)%10
	}
	return string(b)
}

// mailedResetToken pulls the token out of the last reset email.
func mailedResetToken(t *testing.T, env *testEnv) string {
	t.Helper()
	env.mailer.Wait()
	var token string
	for _, m := range env.mail.Messages() {
		if m.Subject != "Password reset request" {
			continue
		}
		_, rest, ok := strings.Cut(m.Body, "reset your password: ")
		require.True(t, ok)
		token, _, _ = strings.Cut(rest, "\n")
	}
	require.NotEmpty(t, token)
	return token
}

func TestLoginIssuesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Alice", "alice@erp.local", models.RoleManager)

	resp := login(t, env, "alice@erp.local", strongPassword)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	require.NotNil(t, resp.User)
	assert.Equal(t, u.ID, resp.User.ID)
	assert.False(t, resp.Requires2FA)

	claims, err := env.auth.JWT.ValidateToken(resp.AccessToken, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, claims.Role)

	stored, err := env.repos.Users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	_, err = env.auth.Login(ctx, &models.LoginRequest{Email: "alice@erp.local", Password: "wrong"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = env.auth.Login(ctx, &models.LoginRequest{Email: "nobody@erp.local", Password: strongPassword})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestInactiveUserCannotLogin(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "Bob", "bob@erp.local", models.RoleEmployee)
	require.NoError(t, env.users.DeleteUser(context.Background(), models.Actor{ID: "admin_001", Role: models.RoleAdmin}, u.ID))

	_, err := env.auth.Login(context.Background(), &models.LoginRequest{Email: "bob@erp.local", Password: strongPassword})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestTwoFactorFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Alice", "alice@erp.local", models.RoleAdmin)
	actor := actorOf(u)

	setup, err := env.auth.Setup2FA(ctx, actor)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	err = env.auth.Enable2FA(ctx, actor, &models.TOTPCodeRequest{Code: wrongCode(currentCode(t, env, setup.Secret))})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	require.NoError(t, env.auth.Enable2FA(ctx, actor, &models.TOTPCodeRequest{Code: currentCode(t, env, setup.Secret)}))

	_, err = env.auth.Setup2FA(ctx, actor)
	require.Error(t, err)
	assert.Equal(t, "2FA already enabled", apperr.PublicMessage(err))

	resp := login(t, env, "alice@erp.local", strongPassword)
	assert.True(t, resp.Requires2FA)
	assert.Empty(t, resp.AccessToken)
	require.NotEmpty(t, resp.TempToken)

	// The temp token is not a bearer token
	_, err = env.auth.JWT.ValidateToken(resp.TempToken, auth.TokenTypeAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	verified, err := env.auth.Verify2FA(ctx, &models.Verify2FARequest{
		TempToken: resp.TempToken,
		Code:      currentCode(t, env, setup.Secret),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, verified.AccessToken)

	require.NoError(t, env.auth.Disable2FA(ctx, actor, &models.TOTPCodeRequest{Code: currentCode(t, env, setup.Secret)}))
	assert.False(t, login(t, env, "alice@erp.local", strongPassword).Requires2FA)

	env.mailer.Wait()
	var subjects []string
	for _, m := range env.mail.Messages() {
		subjects = append(subjects, m.Subject)
	}
	assert.Contains(t, subjects, "Two-factor authentication enabled")
	assert.Contains(t, subjects, "Two-factor authentication disabled")
}

func TestTwoFactorAttemptsAreLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Alice", "alice@erp.local", models.RoleAdmin)
	actor := actorOf(u)

	setup, err := env.auth.Setup2FA(ctx, actor)
	require.NoError(t, err)
	require.NoError(t, env.auth.Enable2FA(ctx, actor, &models.TOTPCodeRequest{Code: currentCode(t, env, setup.Secret)}))

	temp := login(t, env, "alice@erp.local", strongPassword).TempToken
	for i := 0; i < maxFailedAttempts; i++ {
		_, err := env.auth.Verify2FA(ctx, &models.Verify2FARequest{TempToken: temp, Code: wrongCode(currentCode(t, env, setup.Secret))})
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	}

	_, err = env.auth.Verify2FA(ctx, &models.Verify2FARequest{TempToken: temp, Code: currentCode(t, env, setup.Secret)})
	assert.True(t, apperr.Is(err, apperr.KindTooManyRequests))

	// The window slides
	env.clock.Advance(rateLimitWindow + time.Minute)
	_, err = env.auth.Verify2FA(ctx, &models.Verify2FARequest{TempToken: temp, Code: currentCode(t, env, setup.Secret)})
	assert.NoError(t, err)
}

func TestConcurrentWrongCodesStopAtLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Alice", "alice@erp.local", models.RoleAdmin)
	actor := actorOf(u)

	setup, err := env.auth.Setup2FA(ctx, actor)
	require.NoError(t, err)
	require.NoError(t, env.auth.Enable2FA(ctx, actor, &models.TOTPCodeRequest{Code: currentCode(t, env, setup.Secret)}))

	temp := login(t, env, "alice@erp.local", strongPassword).TempToken
	bad := wrongCode(currentCode(t, env, setup.Secret))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		verified int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.Verify2FA(ctx, &models.Verify2FARequest{TempToken: temp, Code: bad})
			if apperr.Is(err, apperr.KindUnauthorized) {
				mu.Lock()
				verified++
				mu.Unlock()
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindTooManyRequests) || apperr.Is(err, apperr.KindConflict), err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, verified, maxFailedAttempts)

	if verified == maxFailedAttempts {
		_, err = env.auth.Verify2FA(ctx, &models.Verify2FARequest{TempToken: temp, Code: currentCode(t, env, setup.Secret)})
		assert.True(t, apperr.Is(err, apperr.KindTooManyRequests))
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Alice", "alice@erp.local", models.RoleEmployee)

	resp := login(t, env, "alice@erp.local", strongPassword)
	claims, err := env.auth.JWT.ValidateToken(resp.AccessToken, auth.TokenTypeAccess)
	require.NoError(t, err)

	revoked, err := env.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, env.auth.Logout(ctx, claims, ""))
	revoked, err = env.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Alice", "alice@erp.local", models.RoleEmployee)
	env.createUser(t, "Bob", "bob@erp.local", models.RoleEmployee)

	resp := login(t, env, "alice@erp.local", strongPassword)
	claims, err := env.auth.JWT.ValidateToken(resp.AccessToken, auth.TokenTypeAccess)
	require.NoError(t, err)

	other := login(t, env, "bob@erp.local", strongPassword)
	err = env.auth.Logout(ctx, claims, other.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, env.auth.Logout(ctx, claims, resp.RefreshToken))
	_, err = env.auth.Refresh(ctx, &models.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = env.auth.Refresh(ctx, &models.RefreshRequest{RefreshToken: other.RefreshToken})
	assert.NoError(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Alice", "alice@erp.local", models.RoleEmployee)
	resp := login(t, env, "alice@erp.local", strongPassword)

	refreshed, err := env.auth.Refresh(ctx, &models.RefreshRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = env.auth.Refresh(ctx, &models.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = env.auth.Refresh(ctx, &models.RefreshRequest{RefreshToken: resp.AccessToken})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Alice", "alice@erp.local", models.RoleEmployee)

	msg, err := env.auth.RequestPasswordReset(ctx, &models.PasswordResetRequest{Email: "nobody@erp.local"})
	require.NoError(t, err)
	assert.Equal(t, resetRequestedMessage, msg)

	msg, err = env.auth.RequestPasswordReset(ctx, &models.PasswordResetRequest{Email: "alice@erp.local"})
	require.NoError(t, err)
	assert.Equal(t, resetRequestedMessage, msg)

	token := mailedResetToken(t, env)

	err = env.auth.ConfirmPasswordReset(ctx, &models.PasswordResetConfirmRequest{Token: token, NewPassword: "short"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	const newPassword = "N3w!Passphrase#"
	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, &models.PasswordResetConfirmRequest{Token: token, NewPassword: newPassword}))
	assert.NotEmpty(t, login(t, env, "alice@erp.local", newPassword).AccessToken)

	err = env.auth.ConfirmPasswordReset(ctx, &models.PasswordResetConfirmRequest{Token: token, NewPassword: newPassword})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Alice", "alice@erp.local", models.RoleEmployee)

	_, err := env.auth.RequestPasswordReset(ctx, &models.PasswordResetRequest{Email: "alice@erp.local"})
	require.NoError(t, err)
	token := mailedResetToken(t, env)

	env.clock.Advance(25 * time.Hour)
	err = env.auth.ConfirmPasswordReset(ctx, &models.PasswordResetConfirmRequest{Token: token, NewPassword: "N3w!Passphrase#"})
	require.Error(t, err)
	assert.Equal(t, "Reset token has expired", apperr.PublicMessage(err))
}
