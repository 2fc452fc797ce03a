package users

import (
	"unicode"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

// ValidatePassword enforces the identity provider's password policy so bad
// passwords fail before any upstream call
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apierrors.Validationf("password must be at least %d characters", MinPasswordLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return apierrors.Validation("password must contain an uppercase letter")
	case !lower:
		return apierrors.Validation("password must contain a lowercase letter")
	case !digit:
		return apierrors.Validation("password must contain a digit")
	case !symbol:
		return apierrors.Validation("password must contain a symbol")
	}
	return nil
}
