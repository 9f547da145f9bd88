package auth

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/url"
	"strconv"
	"time"

	"erp-backend/internal/config"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSize = 200

// TOTPManager issues and checks RFC 6238 codes (SHA1, 6 digits).
type TOTPManager struct {
	issuer string
	period uint
	skew   uint
	now    func() time.Time
}

func NewTOTPManager(cfg *config.Config) *TOTPManager {
	m := &TOTPManager{issuer: cfg.TOTP.Issuer, period: cfg.TOTP.Period, skew: cfg.TOTP.Skew, now: time.Now}
	if m.period == 0 {
		m.period = 30
	}
	if m.issuer == "" {
		m.issuer = "Trivanta Edge ERP"
	}
	return m
}

// GenerateSecret returns a fresh base32 secret usable by authenticator apps.
func (m *TOTPManager) GenerateSecret(account string) (string, error) {
	if account == "" {
		account = "user"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: account,
		Period:      m.period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ProvisioningURI is the otpauth:// URL encoded into the QR code.
func (m *TOTPManager) ProvisioningURI(secret, account string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", strconv.FormatUint(uint64(m.period), 10))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + m.issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// QRCode renders the provisioning URI as a PNG data URI.
func (m *TOTPManager) QRCode(secret, account string) (string, error) {
	key, err := otp.NewKeyFromURL(m.ProvisioningURI(secret, account))
	if err != nil {
		return "", err
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Verify reports whether code is valid for secret in the current window,
// tolerating the configured number of adjacent steps. Malformed input is false.
func (m *TOTPManager) Verify(secret, code string) bool {
	if secret == "" || len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}

	ok, err := totp.ValidateCustom(code, secret, m.now().UTC(), m.opts())
	return err == nil && ok
}

// GenerateCode returns the code for secret at t.
func (m *TOTPManager) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, m.opts())
}

func (m *TOTPManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.period,
		Skew:      m.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
