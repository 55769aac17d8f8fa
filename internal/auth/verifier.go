package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/shared"
)

const verifyLeeway = 30 * time.Second

// errKeyUndetermined flags a parse attempt that failed before signature
// verification because no single key could be chosen from the kid header.
var errKeyUndetermined = errors.New("auth: key undetermined")

// KeySource yields issuer signing keys. *JWKSCache implements it.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
	All(ctx context.Context) ([]*rsa.PublicKey, error)
}

// Verifier validates bearer tokens against the issuer's rotating keys.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	parser   *jwt.Parser
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email              string `json:"email,omitempty"`
	CustomerID         string `json:"customer_id,omitempty"`
	ImpersonatedUserID string `json:"impersonated_user_id,omitempty"`
	SessionID          string `json:"sid,omitempty"`
}

// NewVerifier constructs a Verifier bound to one issuer and audience.
func NewVerifier(keys KeySource, issuer, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(verifyLeeway),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}
}

// Verify validates raw and returns its claims. A token signed with any
// currently valid issuer key passes: when the kid header is missing or not
// yet cached, every live key is tried before the token is rejected.
// Key-endpoint outages surface as ErrUpstreamUnavailable, not as a denial.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, shared.ErrUnauthenticated
	}

	var upstreamErr error
	parsed := &tokenClaims{}
	_, err := v.parser.ParseWithClaims(raw, parsed, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errKeyUndetermined
		}
		key, kerr := v.keys.Key(ctx, kid)
		if kerr != nil {
			if errors.Is(kerr, shared.ErrUpstreamUnavailable) {
				upstreamErr = kerr
			}
			return nil, errKeyUndetermined
		}
		return key, nil
	})
	if err == nil {
		return v.toClaims(parsed)
	}
	if upstreamErr != nil {
		return Claims{}, upstreamErr
	}
	if errors.Is(err, errKeyUndetermined) {
		return v.verifyAgainstAll(ctx, raw)
	}
	return Claims{}, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
}

func (v *Verifier) verifyAgainstAll(ctx context.Context, raw string) (Claims, error) {
	keys, err := v.keys.All(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrUpstreamUnavailable) {
			return Claims{}, err
		}
		return Claims{}, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
	}
	var lastErr error
	for _, key := range keys {
		parsed := &tokenClaims{}
		_, perr := v.parser.ParseWithClaims(raw, parsed, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if perr == nil {
			return v.toClaims(parsed)
		}
		lastErr = perr
		if !errors.Is(perr, jwt.ErrTokenSignatureInvalid) {
			// Structural or claim failures repeat identically for every key.
			break
		}
	}
	return Claims{}, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, lastErr)
}

func (v *Verifier) toClaims(parsed *tokenClaims) (Claims, error) {
	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return Claims{}, fmt.Errorf("%w: sub claim missing", shared.ErrUnauthenticated)
	}
	claims := Claims{
		Subject:   subject,
		Email:     shared.NormalizeEmail(parsed.Email),
		SessionID: parsed.SessionID,
	}
	if parsed.CustomerID != "" {
		id, err := uuid.Parse(parsed.CustomerID)
		if err != nil {
			return Claims{}, fmt.Errorf("%w: malformed customer_id claim", shared.ErrUnauthenticated)
		}
		claims.CustomerID = &id
	}
	if parsed.ImpersonatedUserID != "" {
		id, err := uuid.Parse(parsed.ImpersonatedUserID)
		if err != nil {
			return Claims{}, fmt.Errorf("%w: malformed impersonated_user_id claim", shared.ErrUnauthenticated)
		}
		claims.ImpersonatedUserID = &id
	}
	return claims, nil
}
