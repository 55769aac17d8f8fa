package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/1-to-100/backoffice/internal/shared"
)

const issuerRetryDelay = 250 * time.Millisecond

// IssuerClient pushes session claim changes to the credential issuer's
// admin API. Context changes only take effect once the issuer has persisted
// them; callers then refresh their token to pick the new claims up.
type IssuerClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewIssuerClient constructs a client for the issuer admin API.
func NewIssuerClient(baseURL, adminToken string) *IssuerClient {
	return &IssuerClient{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping checks if the issuer admin API is reachable.
func (c *IssuerClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("issuer returned status %d", resp.StatusCode)
	}
	return nil
}

type claimsUpdatePayload struct {
	CustomerID         *string `json:"customer_id"`
	ImpersonatedUserID *string `json:"impersonated_user_id"`
}

// UpdateSessionClaims persists update on the issuer side. The call is
// retried once after a short delay; it is idempotent, the issuer stores the
// final claim set. Failures map to ErrUpstreamUnavailable so a broken issuer
// never turns into a Forbidden for the caller.
func (c *IssuerClient) UpdateSessionClaims(ctx context.Context, update ClaimsUpdate) error {
	if update.SessionID == "" {
		return errors.New("auth: session id required for claims update")
	}
	payload := claimsUpdatePayload{}
	if update.CustomerID != nil {
		s := update.CustomerID.String()
		payload.CustomerID = &s
	}
	if update.ImpersonatedUserID != nil {
		s := update.ImpersonatedUserID.String()
		payload.ImpersonatedUserID = &s
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(issuerRetryDelay):
			}
		}
		lastErr = c.putClaims(ctx, update.SessionID, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: update session claims: %v", shared.ErrUpstreamUnavailable, lastErr)
}

func (c *IssuerClient) putClaims(ctx context.Context, sessionID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/sessions/%s/claims", c.baseURL, sessionID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("issuer returned status %d", resp.StatusCode)
	}
	return nil
}
