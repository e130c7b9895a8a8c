package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchguard/switchguard/internal/ports"
)

// base32 of the RFC 6238 reference secret "12345678901234567890"
const testSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateCode_ReferenceVectors(t *testing.T) {
	// Last six digits of the RFC 6238 SHA-1 test vectors
	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, c := range cases {
		code, err := GenerateCode(testSecret, time.Unix(c.unix, 0))
		require.NoError(t, err)
		assert.Equal(t, c.code, code, "at unix %d", c.unix)
	}
}

func TestCheck_AcceptsCurrentCode(t *testing.T) {
	at := time.Unix(1111111109, 0)
	verifier := NewTOTPVerifier(map[string]string{"alice": testSecret})
	verifier.now = func() time.Time { return at }

	code, err := GenerateCode(testSecret, at)
	require.NoError(t, err)

	result, err := verifier.Check(context.Background(), "alice", code)
	require.NoError(t, err)
	assert.Equal(t, ports.MFAValid, result)
}

func TestCheck_AcceptsOnePeriodOfSkew(t *testing.T) {
	at := time.Unix(1111111109, 0)
	verifier := NewTOTPVerifier(map[string]string{"alice": testSecret})
	verifier.now = func() time.Time { return at }

	previous, err := GenerateCode(testSecret, at.Add(-30*time.Second))
	require.NoError(t, err)
	result, err := verifier.Check(context.Background(), "alice", previous)
	require.NoError(t, err)
	assert.Equal(t, ports.MFAValid, result)

	tooOld, err := GenerateCode(testSecret, at.Add(-90*time.Second))
	require.NoError(t, err)
	result, err = verifier.Check(context.Background(), "alice", tooOld)
	require.NoError(t, err)
	assert.Equal(t, ports.MFAInvalid, result)
}

func TestCheck_UnknownActor(t *testing.T) {
	verifier := NewTOTPVerifier(map[string]string{"alice": testSecret})

	result, err := verifier.Check(context.Background(), "mallory", "123456")
	require.NoError(t, err)
	assert.Equal(t, ports.MFAInvalid, result)
}

func TestCheck_WrongCode(t *testing.T) {
	at := time.Unix(1111111109, 0)
	verifier := NewTOTPVerifier(map[string]string{"alice": testSecret})
	verifier.now = func() time.Time { return at }

	result, err := verifier.Check(context.Background(), "alice", "000000")
	require.NoError(t, err)
	assert.Equal(t, ports.MFAInvalid, result)
}

func TestCheck_MalformedSecret(t *testing.T) {
	verifier := NewTOTPVerifier(map[string]string{"alice": "not base32 !!!"})

	result, err := verifier.Check(context.Background(), "alice", "123456")
	assert.Error(t, err)
	assert.Equal(t, ports.MFAUnavailable, result)
}
