package auth

import (
	"strings"
	"testing"
	"time"

	"erp-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	Cost = bcrypt.MinCost
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "erp-test"
	cfg.JWT.AccessTTLMinutes = 60
	cfg.JWT.RefreshTTLHours = 720
	cfg.JWT.TempTTLMinutes = 5
	cfg.TOTP.Issuer = "Trivanta Edge ERP"
	cfg.TOTP.Period = 30
	cfg.TOTP.Skew = 1
	return cfg
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Str0ng!Passphrase")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "Str0ng!Passphrase"))
	assert.False(t, VerifyPassword(hash, "Str0ng!Passphrasf"))
	assert.False(t, VerifyPassword("not-a-hash", "Str0ng!Passphrase"))

	other, err := HashPassword("Str0ng!Passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ per call")
}

func TestPasswordStrength(t *testing.T) {
	policy := DefaultPasswordPolicy()

	res := policy.Validate("short")
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "at least 8 characters")

	res = policy.Validate("Str0ng!Passphrase")
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)

	res = policy.Validate("Abcdef1!")
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"Consider using a longer password for better security"}, res.Warnings)

	res = policy.Validate("alllowercase1!")
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "Password must contain at least one uppercase letter")

	res = policy.Validate("Password")
	assert.Contains(t, res.Errors, "Password is too common")
}

func TestTOTPRoundTrip(t *testing.T) {
	m := NewTOTPManager(testConfig())

	secret, err := m.GenerateSecret("alice@example.com")
	require.NoError(t, err)
	other, err := m.GenerateSecret("bob@example.com")
	require.NoError(t, err)

	code, err := m.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	assert.True(t, m.Verify(secret, code))

	foreign, err := m.GenerateCode(other, time.Now())
	require.NoError(t, err)
	if foreign != code {
		assert.False(t, m.Verify(secret, foreign))
	}

	assert.False(t, m.Verify(secret, "12ab56"))
	assert.False(t, m.Verify(secret, ""))
	assert.False(t, m.Verify("", code))
}

func TestTOTPQRCode(t *testing.T) {
	m := NewTOTPManager(testConfig())
	secret, err := m.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	uri := m.ProvisioningURI(secret, "alice@example.com")
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "secret="+secret)

	qr, err := m.QRCode(secret, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))
}

func TestJWTTypes(t *testing.T) {
	j := NewJWTManager(testConfig())

	access, err := j.GenerateAccessToken("admin_001", "admin")
	require.NoError(t, err)
	refresh, err := j.GenerateRefreshToken("admin_001")
	require.NoError(t, err)
	temp, err := j.GenerateTempToken("admin_001")
	require.NoError(t, err)

	claims, err := j.ValidateToken(access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "admin_001", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)

	_, err = j.ValidateToken(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = j.ValidateToken(access, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = j.ValidateToken(temp, TokenTypeTwoFactor)
	assert.NoError(t, err)

	_, err = j.ValidateToken("garbage", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpiredAndForeignSignature(t *testing.T) {
	j := NewJWTManager(testConfig())
	j.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := j.GenerateAccessToken("employee_001", "employee")
	require.NoError(t, err)
	j.now = time.Now

	_, err = j.ValidateToken(old, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	cfg := testConfig()
	cfg.JWT.Secret = "someone-else"
	forged, err := NewJWTManager(cfg).GenerateAccessToken("admin_001", "admin")
	require.NoError(t, err)
	_, err = j.ValidateToken(forged, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRandomTokens(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)

	s, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.Len(t, s, 86)
	assert.NotContains(t, s, "+")

	code, err := GenerateNumericCode(5)
	require.NoError(t, err)
	assert.Len(t, code, 5)

	assert.Len(t, HashToken("abc"), 64)
}
