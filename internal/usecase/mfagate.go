package usecase

import (
	"context"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

const mfaCodeLength = 6

// MFA errors. Provider outages are a distinct kind from a wrong code so that
// callers can report unavailability honestly instead of blaming the user.
var (
	ErrMFAInvalid     = domain.NewDomainError("invalid MFA code")
	ErrMFAUnavailable = domain.NewDomainError("MFA verifier unavailable")
)

// MFAGate enforces that every transition attempt is multi-factor verified
// before any state change. Malformed codes are rejected locally without
// calling the external verifier.
type MFAGate struct {
	verifier ports.MFAVerifier
}

func NewMFAGate(verifier ports.MFAVerifier) *MFAGate {
	return &MFAGate{verifier: verifier}
}

// Verify returns nil only for a well-formed code the external verifier
// accepts. The caller is responsible for the security audit event on failure.
func (g *MFAGate) Verify(ctx context.Context, actor, code string) error {
	if !wellFormedCode(code) {
		return ErrMFAInvalid
	}

	result, err := g.verifier.Check(ctx, actor, code)
	switch result {
	case ports.MFAValid:
		return nil
	case ports.MFAInvalid:
		return ErrMFAInvalid
	default:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
		return ErrMFAUnavailable
	}
}

// wellFormedCode accepts only fixed-length numeric codes
func wellFormedCode(code string) bool {
	if len(code) != mfaCodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
