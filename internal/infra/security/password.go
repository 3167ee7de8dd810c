package security

import (
	"unicode"
	"unicode/utf8"

	"costume-rental/internal/apperr"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes and newer versions reject it outright.
const maxPasswordBytes = 72

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(truncate(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), truncate(password)) == nil
}

// truncate cuts the password to 72 bytes without splitting a UTF-8 sequence.
func truncate(password string) []byte {
	b := []byte(password)
	if len(b) <= maxPasswordBytes {
		return b
	}
	cut := maxPasswordBytes
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// CheckPasswordStrength requires 8+ characters with an upper case letter, a lower case letter and a digit.
func CheckPasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return apperr.Validation("Password must be at least 8 characters")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return apperr.Validation("Password must contain at least one uppercase letter")
	case !lower:
		return apperr.Validation("Password must contain at least one lowercase letter")
	case !digit:
		return apperr.Validation("Password must contain at least one digit")
	}
	return nil
}
