package mfa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
)

// RemoteVerifier delegates code checks to an external MFA provider over HTTP.
// Transport failures and non-2xx responses surface as unavailability, never
// as an invalid code.
type RemoteVerifier struct {
	verifyURL  string
	httpClient *http.Client
	log        logger.Logger
}

type remoteVerifyResponse struct {
	Valid      bool     `json:"valid"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

func NewRemoteVerifier(verifyURL string, timeout time.Duration, log logger.Logger) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Check verifies a code with the provider
func (v *RemoteVerifier) Check(ctx context.Context, actor, code string) (ports.MFAResult, error) {
	form := url.Values{}
	form.Set("actor", actor)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.MFAUnavailable, fmt.Errorf("failed to create MFA request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.log.Error(ctx, "MFA provider request failed", err, map[string]interface{}{"actor": actor})
		return ports.MFAUnavailable, fmt.Errorf("MFA provider unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.MFAUnavailable, fmt.Errorf("MFA provider returned status %d", resp.StatusCode)
	}

	var parsed remoteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.MFAUnavailable, fmt.Errorf("failed to decode MFA provider response: %w", err)
	}

	if parsed.Valid {
		return ports.MFAValid, nil
	}
	v.log.Debug(ctx, "MFA provider rejected code", map[string]interface{}{
		"actor":       actor,
		"error_codes": parsed.ErrorCodes,
	})
	return ports.MFAInvalid, nil
}

var _ ports.MFAVerifier = (*RemoteVerifier)(nil)
