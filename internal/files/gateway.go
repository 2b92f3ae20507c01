package files

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"saferental-service/internal/model"
	"saferental-service/internal/util"
)

var (
	ErrForbidden        = errors.New("not authorized for this file")
	ErrExpiredURL       = errors.New("signed URL expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAgreementMissing = errors.New("agreement not found")
	ErrInvalidFileType  = errors.New("invalid file type")
)

// Gateway issues and validates HMAC-signed download URLs for uploaded
// identity documents. The signature is the sole proof of authorization
// carried in the URL.
type Gateway struct {
	store      *Store
	agreements model.AgreementRepository
	secret     []byte
	ttl        time.Duration
}

type SignedURL struct {
	URL       string    `json:"signedUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewGateway(store *Store, agreements model.AgreementRepository, secret []byte, ttl time.Duration) *Gateway {
	return &Gateway{
		store:      store,
		agreements: agreements,
		secret:     secret,
		ttl:        ttl,
	}
}

// IssueSignedURL authorizes the requester against the agreement and returns
// a time-boxed capability URL. A party can only reach its own document.
func (g *Gateway) IssueSignedURL(ctx context.Context, agreementID, fileType, requesterEmail string) (*SignedURL, error) {
	if fileType != model.UserTypeTenant && fileType != model.UserTypeLandlord {
		return nil, ErrInvalidFileType
	}

	agreement, err := g.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return nil, ErrAgreementMissing
	}

	if requesterEmail != agreement.TenantEmail && requesterEmail != agreement.LandlordEmail {
		return nil, ErrForbidden
	}
	if agreement.PartyEmail(fileType) != requesterEmail {
		return nil, ErrForbidden
	}

	expires := time.Now().Add(g.ttl)
	signature := g.sign(agreementID, fileType, requesterEmail, expires.UnixMilli())

	signedURL := fmt.Sprintf("/api/files/download/%s/%s?signature=%s&expires=%d&email=%s",
		agreementID, fileType, signature, expires.UnixMilli(), url.QueryEscape(requesterEmail))

	util.Info("Signed URL issued",
		zap.String("agreement_id", agreementID),
		zap.String("file_type", fileType),
		zap.Time("expires_at", expires))

	return &SignedURL{URL: signedURL, ExpiresAt: expires}, nil
}

// ResolveSignedURL validates expiry and signature, then maps the request to
// an on-disk path confined to the storage root.
func (g *Gateway) ResolveSignedURL(ctx context.Context, agreementID, fileType, signature string, expires int64, requesterEmail string) (string, error) {
	if time.Now().UnixMilli() > expires {
		return "", ErrExpiredURL
	}

	expected := g.sign(agreementID, fileType, requesterEmail, expires)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", ErrInvalidSignature
	}

	agreement, err := g.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return "", ErrAgreementMissing
	}

	var reference string
	switch fileType {
	case model.UserTypeTenant:
		reference = agreement.TenantIDProofURL
	case model.UserTypeLandlord:
		reference = agreement.LandlordIDProofURL
	default:
		return "", ErrInvalidFileType
	}
	if reference == "" {
		return "", ErrFileNotFound
	}

	return g.store.Resolve(reference)
}

func (g *Gateway) sign(agreementID, fileType, email string, expires int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s:%s:%s:%d", agreementID, fileType, email, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
