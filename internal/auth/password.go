package auth

import (
	"fmt"
	"strings"
	"unicode"

	"erp-backend/internal/config"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var Cost = 12

const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

var commonPasswords = map[string]struct{}{
	"password": {},
	"123456":   {},
	"qwerty":   {},
	"admin":    {},
}

// HashPassword generates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if the provided password matches the hash
func VerifyPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

func NewPasswordPolicy(cfg *config.Config) PasswordPolicy {
	return PasswordPolicy{
		MinLength:        cfg.Password.MinLength,
		RequireUppercase: cfg.Password.RequireUppercase,
		RequireLowercase: cfg.Password.RequireLowercase,
		RequireDigit:     cfg.Password.RequireDigit,
		RequireSpecial:   cfg.Password.RequireSpecial,
	}
}

// DefaultPasswordPolicy is the policy used when no configuration is given.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RequireUppercase: true, RequireLowercase: true, RequireDigit: true, RequireSpecial: true}
}

type StrengthResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks a candidate password against the policy. Warnings never
// make a password invalid.
func (p PasswordPolicy) Validate(password string) StrengthResult {
	res := StrengthResult{Errors: []string{}, Warnings: []string{}}

	if len(password) < p.MinLength {
		res.Errors = append(res.Errors, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	if p.RequireUppercase && !upper {
		res.Errors = append(res.Errors, "Password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !lower {
		res.Errors = append(res.Errors, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digit {
		res.Errors = append(res.Errors, "Password must contain at least one digit")
	}
	if p.RequireSpecial && !special {
		res.Errors = append(res.Errors, "Password must contain at least one special character")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		res.Errors = append(res.Errors, "Password is too common")
	}

	if len(password) < 12 {
		res.Warnings = append(res.Warnings, "Consider using a longer password for better security")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
