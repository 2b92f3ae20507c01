package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"saferental-service/internal/hashing"
	"saferental-service/internal/model"
	"saferental-service/internal/repository/scylla"
)

// In-memory doubles for the persistence and delivery dependencies. They
// mirror the store semantics the services rely on: not-found sentinels,
// idempotent consumption and the compare-and-set delivery claim.

type fakeAgreementRepo struct {
	mu         sync.Mutex
	agreements map[string]*model.Agreement
}

func newFakeAgreementRepo() *fakeAgreementRepo {
	return &fakeAgreementRepo{agreements: make(map[string]*model.Agreement)}
}

func (f *fakeAgreementRepo) Create(ctx context.Context, a *model.Agreement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agreements[a.ID] = &cp
	return nil
}

func (f *fakeAgreementRepo) GetByID(ctx context.Context, id string) (*model.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agreements[id]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgreementRepo) GetByNumber(ctx context.Context, number string) (*model.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.agreements {
		if a.AgreementNumber == number {
			cp := *a
			return &cp, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeAgreementRepo) Update(ctx context.Context, id string, u model.AgreementUpdate) (*model.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agreements[id]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	if u.TenantVerified != nil {
		a.TenantVerified = *u.TenantVerified
	}
	if u.LandlordVerified != nil {
		a.LandlordVerified = *u.LandlordVerified
	}
	if u.PDFURL != nil {
		a.PDFURL = *u.PDFURL
	}
	if u.DeliveryStatus != nil {
		a.DeliveryStatus = *u.DeliveryStatus
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (f *fakeAgreementRepo) ListByParty(ctx context.Context, email string) ([]*model.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Agreement
	for _, a := range f.agreements {
		if a.TenantEmail == email || a.LandlordEmail == email {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAgreementRepo) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agreements[id]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if a.DeliveryStatus != "" {
		return false, nil
	}
	a.DeliveryStatus = model.DeliveryStatusPending
	return true, nil
}

type fakeOtpRepo struct {
	mu   sync.Mutex
	otps map[string]*model.OtpVerification
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{otps: make(map[string]*model.OtpVerification)}
}

func (f *fakeOtpRepo) Create(ctx context.Context, otp *model.OtpVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *otp
	f.otps[otp.ID] = &cp
	return nil
}

func (f *fakeOtpRepo) GetByID(ctx context.Context, id string) (*model.OtpVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.otps[id]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *otp
	return &cp, nil
}

func (f *fakeOtpRepo) FindValid(ctx context.Context, agreementID, contactInfo, userType string) (*model.OtpVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var latest *model.OtpVerification
	for _, otp := range f.otps {
		if otp.AgreementID != agreementID || otp.ContactInfo != contactInfo ||
			otp.UserType != userType || otp.Verified || otp.Expired(now) {
			continue
		}
		if latest == nil || otp.CreatedAt.After(latest.CreatedAt) {
			latest = otp
		}
	}
	if latest == nil {
		return nil, scylla.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeOtpRepo) MarkVerified(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.otps[id]
	if !ok {
		return false, nil
	}
	otp.Verified = true
	return true, nil
}

func (f *fakeOtpRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, otp := range f.otps {
		if !otp.Verified && before.After(otp.ExpiresAt) {
			delete(f.otps, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeAllocator struct {
	mu  sync.Mutex
	seq int
	err error
}

func (f *fakeAllocator) NextAgreementNumber(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("SR-2026-%06d", f.seq), nil
}

// recordingTransport captures every code it is asked to deliver.
type recordingTransport struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (r *recordingTransport) Send(ctx context.Context, contactInfo, code string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return nil
}

func (r *recordingTransport) lastCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.codes) == 0 {
		return ""
	}
	return r.codes[len(r.codes)-1]
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(agreement *model.Agreement) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 " + agreement.AgreementNumber), nil
}

type fakeMailer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeMailer) SendAgreementPdf(ctx context.Context, tenantEmail, landlordEmail, agreementNumber string, pdfData []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls++
	return nil
}

func (f *fakeMailer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeThrottle struct {
	mu       sync.Mutex
	sends    map[string]int
	attempts map[string]int
	err      error
}

func newFakeThrottle() *fakeThrottle {
	return &fakeThrottle{
		sends:    make(map[string]int),
		attempts: make(map[string]int),
	}
}

func (f *fakeThrottle) IncrementSends(contactInfo string, window time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends[contactInfo]++
	return f.sends[contactInfo], nil
}

func (f *fakeThrottle) IncrementAttempts(otpID string, window time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[otpID]++
	return f.attempts[otpID], nil
}

func (f *fakeThrottle) ResetAttempts(otpID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attempts, otpID)
	return nil
}

var errTransportDown = errors.New("smtp connection refused")

func testHasher() *hashing.Hasher {
	return hashing.NewHasher(hashing.Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}
