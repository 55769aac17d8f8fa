package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
	_ "github.com/1-to-100/backoffice/testing"
)

const (
	testIssuer   = "https://issuer.test"
	testAudience = "backoffice"
)

// fakeRepo is an in-memory Repository for guard chain tests.
type fakeRepo struct {
	mu        sync.Mutex
	bySubject map[string]*UserRecord
	byEmail   map[string]*UserRecord
	byID      map[uuid.UUID]*UserRecord
	grants    map[string]bool
	customers map[uuid.UUID]bool

	linkCalls int
	linkErr   error
	onLink    func()
	findErr   error
	activated []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bySubject: map[string]*UserRecord{},
		byEmail:   map[string]*UserRecord{},
		byID:      map[uuid.UUID]*UserRecord{},
		grants:    map[string]bool{},
		customers: map[uuid.UUID]bool{},
	}
}

func (f *fakeRepo) add(rec *UserRecord) *UserRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.SubjectID != nil {
		f.bySubject[*rec.SubjectID] = rec
	}
	f.byEmail[shared.NormalizeEmail(rec.Email)] = rec
	f.byID[rec.ID] = rec
	return rec
}

func (f *fakeRepo) grant(userID, customerID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[userID.String()+"|"+customerID.String()] = true
}

func (f *fakeRepo) FindBySubject(ctx context.Context, subject string) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.bySubject[subject]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[shared.NormalizeEmail(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) LinkSubjectByEmail(ctx context.Context, subject, email string) (*UserRecord, error) {
	f.mu.Lock()
	f.linkCalls++
	hook := f.onLink
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	rec, ok := f.byEmail[shared.NormalizeEmail(email)]
	if !ok || rec.SubjectID != nil || rec.Status == shared.UserStatusDeleted || rec.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	s := subject
	rec.SubjectID = &s
	f.bySubject[subject] = rec
	return rec, nil
}

func (f *fakeRepo) HasCustomerGrant(ctx context.Context, userID, customerID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[userID.String()+"|"+customerID.String()], nil
}

func (f *fakeRepo) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[id], nil
}

func (f *fakeRepo) ActivateUser(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.Status != shared.UserStatusInvited {
		return shared.ErrNotFound
	}
	rec.Status = shared.UserStatusActive
	rec.InviteTokenHash = nil
	f.activated = append(f.activated, id)
	return nil
}

var _ Repository = (*fakeRepo)(nil)

func activeUser(role string, customerID *uuid.UUID) *UserRecord {
	id := uuid.New()
	subject := "sub-" + id.String()
	roleID := int64(len(role))
	return &UserRecord{
		ID:         id,
		SubjectID:  &subject,
		Email:      fmt.Sprintf("%s@example.test", id.String()[:8]),
		FullName:   "Test User",
		CustomerID: customerID,
		RoleID:     roleID,
		RoleName:   role,
		Status:     shared.UserStatusActive,
	}
}

// stubIssuer records claim updates pushed to the credential issuer.
type stubIssuer struct {
	mu      sync.Mutex
	updates []ClaimsUpdate
	err     error
}

func (s *stubIssuer) UpdateSessionClaims(ctx context.Context, update ClaimsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, update)
	return nil
}

// stubAuditor collects audit events in memory.
type stubAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *stubAuditor) Record(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubAuditor) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

// staticKeys is a KeySource backed by a fixed key set.
type staticKeys struct {
	keys   map[string]*rsa.PublicKey
	keyErr error
	allErr error
}

func (s *staticKeys) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if s.keyErr != nil {
		return nil, s.keyErr
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

func (s *staticKeys) All(ctx context.Context) ([]*rsa.PublicKey, error) {
	if s.allErr != nil {
		return nil, s.allErr
	}
	out := make([]*rsa.PublicKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key)
	}
	return out, nil
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

type tokenOverrides struct {
	issuer    string
	audience  string
	expiresAt time.Time
	subject   string
	email     string
	customer  string
	acted     string
	session   string
	omitKid   bool
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, o tokenOverrides) string {
	t.Helper()
	if o.issuer == "" {
		o.issuer = testIssuer
	}
	if o.audience == "" {
		o.audience = testAudience
	}
	if o.expiresAt.IsZero() {
		o.expiresAt = time.Now().Add(time.Hour)
	}
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    o.issuer,
			Subject:   o.subject,
			Audience:  jwt.ClaimStrings{o.audience},
			ExpiresAt: jwt.NewNumericDate(o.expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Email:              o.email,
		CustomerID:         o.customer,
		ImpersonatedUserID: o.acted,
		SessionID:          o.session,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if !o.omitKid {
		token.Header["kid"] = kid
	}
	raw, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func jwksJSON(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()
	payload := jwksResponse{}
	for kid, key := range keys {
		payload.Keys = append(payload.Keys, jwkKey{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return body
}
