package mfa

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/switchguard/switchguard/internal/ports"
)

// BreakGlassChecker validates emergency override codes against a fixed set
// of bcrypt hashes supplied at deployment time. Codes never appear in config
// in cleartext.
type BreakGlassChecker struct {
	hashes []string
}

func NewBreakGlassChecker(hashes []string) *BreakGlassChecker {
	return &BreakGlassChecker{hashes: hashes}
}

// CheckOverride reports whether the code matches any configured hash
func (c *BreakGlassChecker) CheckOverride(code string) bool {
	if code == "" {
		return false
	}
	for _, hash := range c.hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			return true
		}
	}
	return false
}

// HashOverrideCode produces a bcrypt hash suitable for configuration.
// Exported for provisioning tooling.
func HashOverrideCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var _ ports.OverrideChecker = (*BreakGlassChecker)(nil)
