package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8, RequireComplexity: true}

	tests := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{"valid", "Sup3r!pass", ""},
		{"too short", "S3c!p", "at least 8 characters"},
		{"too long", "Aa1!" + strings.Repeat("x", 130), "not exceed 128 characters"},
		{"no uppercase", "weak3r!pass", "uppercase letter"},
		{"no lowercase", "WEAK3R!PASS", "lowercase letter"},
		{"no digit", "Weaker!pass", "digit"},
		{"no special", "Weak3rpass", "special character"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Validate(tc.password)
			if tc.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrWeakPassword)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestPasswordPolicyLengthOnly(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8, RequireComplexity: false}

	assert.NoError(t, policy.Validate("longpass1"))
	assert.NoError(t, policy.Validate("alllowercase"))
	assert.ErrorIs(t, policy.Validate("short"), ErrWeakPassword)
}
