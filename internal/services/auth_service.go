package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/auth"
	"erp-backend/internal/config"
	"erp-backend/internal/logging"
	"erp-backend/internal/mailer"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/timeutil"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

const (
	totpScope         = "totp"
	maxFailedAttempts = 5
	rateLimitWindow   = 15 * time.Minute

	resetRequestedMessage = "If email exists, reset link will be sent"
)

type AuthService struct {
	Users    *repositories.UserRepository
	Tokens   *repositories.TokenRepository
	JWT      *auth.JWTManager
	TOTP     *auth.TOTPManager
	Policy   auth.PasswordPolicy
	Mailer   *mailer.Mailer
	resetTTL time.Duration
	now      timeutil.Clock
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(cfg *config.Config, users *repositories.UserRepository, tokens *repositories.TokenRepository,
	jwtManager *auth.JWTManager, totpManager *auth.TOTPManager, m *mailer.Mailer, clock timeutil.Clock) *AuthService {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &AuthService{
		Users:    users,
		Tokens:   tokens,
		JWT:      jwtManager,
		TOTP:     totpManager,
		Policy:   auth.NewPasswordPolicy(cfg),
		Mailer:   m,
		resetTTL: cfg.ResetTTL(),
		now:      clock,
		log:      logging.For("auth"),
	}
}

// dummy is compared against when the email is unknown so a miss costs as
// much as a wrong password.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	return s.dummyHash
}

// Authenticate returns the active user owning email and password.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		auth.VerifyPassword(s.dummy(), password)
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	return user, nil
}

// Login is step one. Users with 2FA get a short-lived temp token instead of
// an access token and must call Verify2FA.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.log.Warn().Str("email", req.Email).Msg("login failed")
		return nil, err
	}

	if user.Has2FA() {
		temp, err := s.JWT.GenerateTempToken(user.ID)
		if err != nil {
			return nil, apperr.Internal(err, "Failed to generate token")
		}
		return &models.LoginResponse{
			Requires2FA: true,
			TempToken:   temp,
			Message:     "Please enter your 2FA code",
		}, nil
	}

	return s.issue(ctx, user)
}

// Verify2FA is step two of a login with 2FA.
func (s *AuthService) Verify2FA(ctx context.Context, req *models.Verify2FARequest) (*models.LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	claims, err := s.JWT.ValidateToken(req.TempToken, auth.TokenTypeTwoFactor)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}
	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Has2FA() {
		return nil, apperr.Validation("2FA not enabled")
	}
	if err := s.checkCode(ctx, user.ID, user.TOTPSecret, req.Code); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Refresh swaps a refresh token for a new token pair. The old refresh token
// is revoked.
func (s *AuthService) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	claims, err := s.JWT.ValidateToken(req.RefreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}
	revoked, err := s.Tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}
	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Logout revokes the presented access token until it would have expired.
// A refresh token, when given, must belong to the same user and is revoked
// as well. One that no longer validates is already unusable and is skipped.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims, refreshToken string) error {
	var refresh *auth.Claims
	if refreshToken != "" {
		if rc, err := s.JWT.ValidateToken(refreshToken, auth.TokenTypeRefresh); err == nil {
			if rc.UserID != claims.UserID {
				return apperr.Forbidden("Refresh token belongs to another user")
			}
			refresh = rc
		}
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}
	if err := s.revoke(ctx, refresh); err != nil {
		return err
	}
	s.log.Info().Str("user_id", claims.UserID).Msg("logged out")
	return nil
}

func (s *AuthService) revoke(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return s.Tokens.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now()))
}

// IsRevoked reports whether a token id was logged out.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.Tokens.IsRevoked(ctx, jti)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*models.LoginResponse, error) {
	access, err := s.JWT.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate token")
	}
	refresh, err := s.JWT.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate token")
	}

	now := s.now()
	updated, err := s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.LastLogin = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	profile := updated.Profile()
	s.log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("login successful")
	return &models.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.JWT.AccessTTL().Seconds()),
		User:         &profile,
	}, nil
}

func (s *AuthService) activeUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Users.Get(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("User not found")
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, apperr.Unauthorized("Account is inactive")
	}
	return user, nil
}

// checkCode verifies a TOTP code, counting failures per user. Each attempt
// is recorded before the code is checked and cleared on success, so after
// maxFailedAttempts inside rateLimitWindow every attempt is refused.
func (s *AuthService) checkCode(ctx context.Context, userID, secret, code string) error {
	allowed, err := s.Tokens.TakeAttempt(ctx, totpScope, userID, maxFailedAttempts, rateLimitWindow)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.TooManyRequests("Too many failed attempts. Please try again later")
	}
	if !s.TOTP.Verify(secret, code) {
		s.log.Warn().Str("user_id", userID).Msg("invalid 2FA code")
		return apperr.Unauthorized("Invalid 2FA code")
	}
	return s.Tokens.ResetFailures(ctx, totpScope, userID)
}

// Setup2FA stores a pending secret and returns it with its QR code. The
// secret becomes active once Enable2FA confirms a code from it.
func (s *AuthService) Setup2FA(ctx context.Context, actor models.Actor) (*models.TOTPSetupResponse, error) {
	user, err := s.activeUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if user.Has2FA() {
		return nil, apperr.Validation("2FA already enabled")
	}

	secret, err := s.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate 2FA secret")
	}
	qr, err := s.TOTP.QRCode(secret, user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate QR code")
	}

	if _, err := s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.TempTOTPSecret = secret
		return nil
	}); err != nil {
		return nil, err
	}

	return &models.TOTPSetupResponse{
		Secret:  secret,
		QRCode:  qr,
		Message: "Scan the QR code with your authenticator app, then confirm with a code",
	}, nil
}

func (s *AuthService) Enable2FA(ctx context.Context, actor models.Actor, req *models.TOTPCodeRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	user, err := s.activeUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if user.Has2FA() {
		return apperr.Validation("2FA already enabled")
	}
	if user.TempTOTPSecret == "" {
		return apperr.Validation("2FA setup not started")
	}
	if err := s.checkCode(ctx, user.ID, user.TempTOTPSecret, req.Code); err != nil {
		return err
	}

	if _, err := s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.TOTPSecret = u.TempTOTPSecret
		u.TempTOTPSecret = ""
		return nil
	}); err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Msg("2FA enabled")
	if s.Mailer != nil {
		s.Mailer.SendTwoFactorEnabled(user.Email, user.Name)
	}
	return nil
}

func (s *AuthService) Disable2FA(ctx context.Context, actor models.Actor, req *models.TOTPCodeRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	user, err := s.activeUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !user.Has2FA() {
		return apperr.Validation("2FA not enabled")
	}
	if err := s.checkCode(ctx, user.ID, user.TOTPSecret, req.Code); err != nil {
		return err
	}

	if _, err := s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.TOTPSecret = ""
		u.TempTOTPSecret = ""
		return nil
	}); err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Msg("2FA disabled")
	if s.Mailer != nil {
		s.Mailer.SendTwoFactorDisabled(user.Email, user.Name)
	}
	return nil
}

// RequestPasswordReset mails a reset token when email belongs to an active
// user. The answer is the same either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req *models.PasswordResetRequest) (string, error) {
	if err := validation.Struct(req); err != nil {
		return "", err
	}
	user, err := s.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return resetRequestedMessage, nil
		}
		return "", err
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", apperr.Internal(err, "Failed to generate reset token")
	}
	expiry := s.now().Add(s.resetTTL)
	if _, err := s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.ResetTokenHash = auth.HashToken(token)
		u.ResetTokenExpiry = &expiry
		return nil
	}); err != nil {
		return "", err
	}

	if s.Mailer != nil {
		s.Mailer.SendPasswordReset(user.Email, user.Name, token)
	}
	s.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	return resetRequestedMessage, nil
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, req *models.PasswordResetConfirmRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	if res := s.Policy.Validate(req.NewPassword); !res.Valid {
		return apperr.Validation("Password does not meet requirements").WithDetails(res.Errors...)
	}

	user, err := s.Users.FindByResetToken(ctx, auth.HashToken(req.Token))
	if err != nil {
		return err
	}
	if user.ResetTokenExpiry == nil || s.now().After(*user.ResetTokenExpiry) {
		return apperr.Validation("Reset token has expired")
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal(err, "Failed to hash password")
	}
	_, err = s.Users.Update(ctx, user.ID, 0, func(u *models.User) error {
		u.PasswordHash = hash
		u.ResetTokenHash = ""
		u.ResetTokenExpiry = nil
		return nil
	})
	if err == nil {
		s.log.Info().Str("user_id", user.ID).Msg("password reset")
	}
	return err
}

func (s *AuthService) Profile(ctx context.Context, actor models.Actor) (*models.User, error) {
	return s.activeUser(ctx, actor.ID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, actor models.Actor, req *models.UpdateProfileRequest) (*models.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.Users.Update(ctx, actor.ID, 0, func(u *models.User) error {
		if req.Name != nil {
			u.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		return nil
	})
}

func (s *AuthService) ChangePassword(ctx context.Context, actor models.Actor, req *models.ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	user, err := s.activeUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		return apperr.Validation("Current password is incorrect")
	}
	if res := s.Policy.Validate(req.NewPassword); !res.Valid {
		return apperr.Validation("Password does not meet requirements").WithDetails(res.Errors...)
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal(err, "Failed to hash password")
	}
	_, err = s.Users.Update(ctx, actor.ID, 0, func(u *models.User) error {
		u.PasswordHash = hash
		return nil
	})
	return err
}
