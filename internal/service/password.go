package service

import (
	"fmt"
	"strings"
	"unicode"
)

const maxPasswordLength = 128

const passwordSpecials = `!@#$%^&*(),.?":{}|<>_-+=[]\/~` + "`"

// PasswordPolicy validates candidate passwords at registration. Length is
// always enforced; the character-class rules can be switched off for
// deployments that prefer length-only policies.
type PasswordPolicy struct {
	MinLength         int
	RequireComplexity bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakPassword, p.MinLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must not exceed %d characters", ErrWeakPassword, maxPasswordLength)
	}
	if !p.RequireComplexity {
		return nil
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrWeakPassword)
	case !hasDigit:
		return fmt.Errorf("%w: password must contain at least one digit", ErrWeakPassword)
	case !hasSpecial:
		return fmt.Errorf("%w: password must contain at least one special character", ErrWeakPassword)
	}
	return nil
}
