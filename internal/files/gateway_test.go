package files

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saferental-service/internal/model"
)

type stubAgreementRepo struct {
	agreement *model.Agreement
}

func (s *stubAgreementRepo) Create(ctx context.Context, a *model.Agreement) error { return nil }

func (s *stubAgreementRepo) GetByID(ctx context.Context, id string) (*model.Agreement, error) {
	if s.agreement == nil || s.agreement.ID != id {
		return nil, errors.New("record not found")
	}
	return s.agreement, nil
}

func (s *stubAgreementRepo) GetByNumber(ctx context.Context, number string) (*model.Agreement, error) {
	return nil, errors.New("record not found")
}

func (s *stubAgreementRepo) Update(ctx context.Context, id string, u model.AgreementUpdate) (*model.Agreement, error) {
	return s.agreement, nil
}

func (s *stubAgreementRepo) ListByParty(ctx context.Context, email string) ([]*model.Agreement, error) {
	return nil, nil
}

func (s *stubAgreementRepo) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func newTestGateway(t *testing.T, ttl time.Duration) (*Gateway, *Store, *model.Agreement) {
	t.Helper()
	store := newTestStore(t, 1<<20)

	tenantRef, err := store.Save(model.UserTypeTenant, "tenant-id.png", strings.NewReader("tenant doc"))
	require.NoError(t, err)
	landlordRef, err := store.Save(model.UserTypeLandlord, "landlord-id.pdf", strings.NewReader("landlord doc"))
	require.NoError(t, err)

	agreement := &model.Agreement{
		ID:                 "11111111-2222-3333-4444-555555555555",
		AgreementNumber:    "SR-2026-000007",
		TenantEmail:        "tenant@example.com",
		LandlordEmail:      "landlord@example.com",
		TenantIDProofURL:   tenantRef,
		LandlordIDProofURL: landlordRef,
	}

	gateway := NewGateway(store, &stubAgreementRepo{agreement: agreement}, []byte("test-signing-secret"), ttl)
	return gateway, store, agreement
}

// parseSignedURL pulls the query parameters back out of an issued URL.
func parseSignedURL(t *testing.T, signed string) (signature string, expires int64, email string) {
	t.Helper()
	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	expires, err = strconv.ParseInt(q.Get("expires"), 10, 64)
	require.NoError(t, err)
	return q.Get("signature"), expires, q.Get("email")
}

func TestSignedURLRoundTrip(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, time.Hour)
	ctx := context.Background()

	signed, err := gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, agreement.TenantEmail)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed.URL, "/api/files/download/"))
	assert.True(t, signed.ExpiresAt.After(time.Now()))

	signature, expires, email := parseSignedURL(t, signed.URL)
	path, err := gateway.ResolveSignedURL(ctx, agreement.ID, model.UserTypeTenant, signature, expires, email)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestSignedURLRejectsOtherParty(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, time.Hour)
	ctx := context.Background()

	// The landlord cannot mint a URL for the tenant's document.
	_, err := gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, agreement.LandlordEmail)
	assert.ErrorIs(t, err, ErrForbidden)

	// An outsider cannot mint anything.
	_, err = gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, "stranger@example.com")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSignedURLRejectsUnknownAgreement(t *testing.T) {
	gateway, _, _ := newTestGateway(t, time.Hour)

	_, err := gateway.IssueSignedURL(context.Background(), "no-such-id", model.UserTypeTenant, "tenant@example.com")
	assert.ErrorIs(t, err, ErrAgreementMissing)
}

func TestSignedURLRejectsBadFileType(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, time.Hour)

	_, err := gateway.IssueSignedURL(context.Background(), agreement.ID, "witness", agreement.TenantEmail)
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestSignedURLTamperedSignature(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, time.Hour)
	ctx := context.Background()

	signed, err := gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, agreement.TenantEmail)
	require.NoError(t, err)
	signature, expires, email := parseSignedURL(t, signed.URL)

	// Flip one hex character.
	tampered := []byte(signature)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	_, err = gateway.ResolveSignedURL(ctx, agreement.ID, model.UserTypeTenant, string(tampered), expires, email)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignedURLParameterSwapInvalidatesSignature(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, time.Hour)
	ctx := context.Background()

	signed, err := gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, agreement.TenantEmail)
	require.NoError(t, err)
	signature, expires, _ := parseSignedURL(t, signed.URL)

	// Re-using the tenant's signature for the landlord's document fails.
	_, err = gateway.ResolveSignedURL(ctx, agreement.ID, model.UserTypeLandlord, signature, expires, agreement.TenantEmail)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Extending the expiry breaks the signature too.
	_, err = gateway.ResolveSignedURL(ctx, agreement.ID, model.UserTypeTenant, signature, expires+60_000, agreement.TenantEmail)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignedURLExpiry(t *testing.T) {
	gateway, _, agreement := newTestGateway(t, -time.Minute)
	ctx := context.Background()

	signed, err := gateway.IssueSignedURL(ctx, agreement.ID, model.UserTypeTenant, agreement.TenantEmail)
	require.NoError(t, err)
	signature, expires, email := parseSignedURL(t, signed.URL)

	_, err = gateway.ResolveSignedURL(ctx, agreement.ID, model.UserTypeTenant, signature, expires, email)
	assert.ErrorIs(t, err, ErrExpiredURL)
}
