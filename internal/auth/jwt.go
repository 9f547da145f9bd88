package auth

import (
	"errors"
	"time"

	"erp-backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "type" claim. A token is only accepted by the
// endpoint that expects its type.
const (
	TokenTypeAccess    = "access"
	TokenTypeRefresh   = "refresh"
	TokenTypeTwoFactor = "2fa_pending"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// expiry, wrong type or garbage input are indistinguishable to the caller.
var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	tempTTL    time.Duration
	now        func() time.Time
}

func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.JWT.Issuer,
		accessTTL:  cfg.AccessTTL(),
		refreshTTL: cfg.RefreshTTL(),
		tempTTL:    cfg.TempTTL(),
		now:        time.Now,
	}
}

// AccessTTL is reported to clients as expires_in.
func (j *JWTManager) AccessTTL() time.Duration { return j.accessTTL }

// GenerateAccessToken creates a short-lived bearer token carrying the role.
func (j *JWTManager) GenerateAccessToken(userID, role string) (string, error) {
	return j.sign(userID, role, TokenTypeAccess, j.accessTTL)
}

// GenerateRefreshToken creates a long-lived token accepted only by /auth/refresh.
func (j *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return j.sign(userID, "", TokenTypeRefresh, j.refreshTTL)
}

// GenerateTempToken creates a short-lived token for 2FA verification (used
// between login step 1 and step 2)
func (j *JWTManager) GenerateTempToken(userID string) (string, error) {
	return j.sign(userID, "", TokenTypeTwoFactor, j.tempTTL)
}

func (j *JWTManager) sign(userID, role, tokenType string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken verifies signature, expiry and type and returns the claims.
func (j *JWTManager) ValidateToken(tokenString, wantType string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != wantType || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
