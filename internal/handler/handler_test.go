package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saferental-service/internal/config"
	"saferental-service/internal/files"
	"saferental-service/internal/hashing"
	"saferental-service/internal/model"
	"saferental-service/internal/notify"
	"saferental-service/internal/repository/scylla"
	"saferental-service/internal/service"
	"saferental-service/internal/util"
)

// memAgreementRepo and memOtpRepo back the full HTTP stack in-memory so the
// tests exercise routing, status mapping and response shapes end to end.

type memAgreementRepo struct {
	mu         sync.Mutex
	agreements map[string]*model.Agreement
}

func (m *memAgreementRepo) Create(ctx context.Context, a *model.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *memAgreementRepo) GetByID(ctx context.Context, id string) (*model.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAgreementRepo) GetByNumber(ctx context.Context, number string) (*model.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agreements {
		if a.AgreementNumber == number {
			cp := *a
			return &cp, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (m *memAgreementRepo) Update(ctx context.Context, id string, u model.AgreementUpdate) (*model.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
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
	cp := *a
	return &cp, nil
}

func (m *memAgreementRepo) ListByParty(ctx context.Context, email string) ([]*model.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Agreement
	for _, a := range m.agreements {
		if a.TenantEmail == email || a.LandlordEmail == email {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAgreementRepo) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if a.DeliveryStatus != "" {
		return false, nil
	}
	a.DeliveryStatus = model.DeliveryStatusPending
	return true, nil
}

type memOtpRepo struct {
	mu   sync.Mutex
	otps map[string]*model.OtpVerification
}

func (m *memOtpRepo) Create(ctx context.Context, otp *model.OtpVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *otp
	m.otps[otp.ID] = &cp
	return nil
}

func (m *memOtpRepo) GetByID(ctx context.Context, id string) (*model.OtpVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.otps[id]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *otp
	return &cp, nil
}

func (m *memOtpRepo) FindValid(ctx context.Context, agreementID, contactInfo, userType string) (*model.OtpVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var latest *model.OtpVerification
	for _, otp := range m.otps {
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

func (m *memOtpRepo) MarkVerified(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.otps[id]
	if !ok {
		return false, nil
	}
	otp.Verified = true
	return true, nil
}

func (m *memOtpRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

type memAllocator struct {
	mu  sync.Mutex
	seq int
}

func (m *memAllocator) NextAgreementNumber(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("SR-2026-%06d", m.seq), nil
}

type captureTransport struct {
	mu    sync.Mutex
	codes []string
}

func (c *captureTransport) Send(ctx context.Context, contactInfo, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return nil
}

func (c *captureTransport) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[len(c.codes)-1]
}

type docGenerator struct{}

func (docGenerator) Generate(a *model.Agreement) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

type noopMailer struct{}

func (noopMailer) SendAgreementPdf(ctx context.Context, tenantEmail, landlordEmail, agreementNumber string, pdfData []byte) error {
	return nil
}

type testEnv struct {
	server     *httptest.Server
	agreements *memAgreementRepo
	transport  *captureTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Files.UploadDir = t.TempDir()
	cfg.Files.Buckets = 16
	cfg.Files.MaxUploadBytes = 1 << 20
	cfg.Files.SignedURLTTL = time.Hour

	store, err := files.NewStore(cfg)
	require.NoError(t, err)

	agreements := &memAgreementRepo{agreements: make(map[string]*model.Agreement)}
	otps := &memOtpRepo{otps: make(map[string]*model.OtpVerification)}
	transport := &captureTransport{}

	hasher := hashing.NewHasher(hashing.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})

	agreementSvc := service.NewAgreementService(agreements, &memAllocator{}, nil, nil, nil, nil)
	otpSvc := service.NewOTPService(
		otps, agreements, hasher,
		notify.Transports{model.ContactTypeEmail: transport},
		nil, docGenerator{}, noopMailer{}, nil, nil, nil,
		config.OTPConfig{TTL: 10 * time.Minute, MaxSends: 5, MaxAttempts: 5},
	)

	gateway := files.NewGateway(store, agreements, []byte("handler-test-secret"), time.Hour)

	router := NewRouter(
		NewAgreementHandler(agreementSvc, store, util.Get()),
		NewOTPHandler(otpSvc, util.Get()),
		NewFileHandler(gateway, nil, nil, util.Get()),
		nil,
		util.Get(),
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, agreements: agreements, transport: transport}
}

func multipartAgreement(t *testing.T, omitFields ...string) (*bytes.Buffer, string) {
	t.Helper()

	omit := make(map[string]bool, len(omitFields))
	for _, f := range omitFields {
		omit[f] = true
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := map[string]string{
		"tenantFullName":   "Asha Rao",
		"tenantEmail":      "asha@example.com",
		"tenantPhone":      "+919812345678",
		"tenantDob":        "1992-04-17",
		"tenantAddress":    "3 Old Mill Lane",
		"landlordFullName": "Vikram Mehta",
		"landlordEmail":    "vikram@example.com",
		"landlordPhone":    "+919876543210",
		"landlordAddress":  "9 Hill Crest",
		"propertyAddress":  "14 Lake View Road",
		"monthlyRent":      "25000",
		"securityDeposit":  "50000",
		"leaseDuration":    "11 months",
		"leaseStartDate":   "2026-09-01",
		"leaseEndDate":     "2027-07-31",
	}
	for name, value := range fields {
		if !omit[name] {
			require.NoError(t, w.WriteField(name, value))
		}
	}

	if !omit["tenantIdProof"] {
		fw, err := w.CreateFormFile("tenantIdProof", "tenant.png")
		require.NoError(t, err)
		fw.Write([]byte("tenant id image"))
	}
	if !omit["landlordIdProof"] {
		fw, err := w.CreateFormFile("landlordIdProof", "landlord.pdf")
		require.NoError(t, err)
		fw.Write([]byte("landlord id doc"))
	}

	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func createAgreement(t *testing.T, env *testEnv) *model.Agreement {
	t.Helper()

	body, contentType := multipartAgreement(t)
	resp, err := http.Post(env.server.URL+"/api/agreements", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Success bool            `json:"success"`
		Data    model.Agreement `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	return &out.Data
}

func sendOtp(t *testing.T, env *testEnv, agreementID, contact, userType string) (otpID, code string) {
	t.Helper()

	payload := fmt.Sprintf(`{"agreementId":%q,"contactInfo":%q,"contactType":"email","userType":%q}`,
		agreementID, contact, userType)
	resp, err := http.Post(env.server.URL+"/api/otp/send", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data struct {
			OtpID string `json:"otpId"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Data.OtpID)
	return out.Data.OtpID, env.transport.lastCode()
}

func verifyOtp(t *testing.T, env *testEnv, otpID, code string) *http.Response {
	t.Helper()

	payload := fmt.Sprintf(`{"otpId":%q,"otpCode":%q}`, otpID, code)
	resp, err := http.Post(env.server.URL+"/api/otp/verify", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestCreateAgreementEndpoint(t *testing.T) {
	env := newTestEnv(t)

	agreement := createAgreement(t, env)
	assert.Equal(t, "SR-2026-000001", agreement.AgreementNumber)
	assert.True(t, strings.HasPrefix(agreement.TenantIDProofURL, "/uploads/"))
	assert.True(t, strings.HasPrefix(agreement.LandlordIDProofURL, "/uploads/"))
	assert.False(t, agreement.TenantVerified)
}

func TestCreateAgreementMissingUpload(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartAgreement(t, "landlordIdProof")
	resp, err := http.Post(env.server.URL+"/api/agreements", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAgreementMissingField(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartAgreement(t, "monthlyRent")
	resp, err := http.Post(env.server.URL+"/api/agreements", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOtpLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	agreement := createAgreement(t, env)

	otpID, code := sendOtp(t, env, agreement.ID, agreement.TenantEmail, model.UserTypeTenant)

	resp := verifyOtp(t, env, otpID, code)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data struct {
			Verified bool `json:"verified"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Data.Verified)
}

func TestOtpVerifyWrongCode(t *testing.T) {
	env := newTestEnv(t)
	agreement := createAgreement(t, env)

	otpID, code := sendOtp(t, env, agreement.ID, agreement.TenantEmail, model.UserTypeTenant)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	resp := verifyOtp(t, env, otpID, wrong)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOtpSendUnknownAgreement(t *testing.T) {
	env := newTestEnv(t)

	payload := `{"agreementId":"no-such-id","contactInfo":"a@b.c","contactType":"email","userType":"tenant"}`
	resp, err := http.Post(env.server.URL+"/api/otp/send", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerifyAgreementEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agreement := createAgreement(t, env)

	// Not yet verified by both parties.
	resp, err := http.Get(env.server.URL + "/api/agreements/verify/" + agreement.AgreementNumber)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Verify both parties through the OTP flow.
	for _, party := range []struct{ email, userType string }{
		{agreement.TenantEmail, model.UserTypeTenant},
		{agreement.LandlordEmail, model.UserTypeLandlord},
	} {
		otpID, code := sendOtp(t, env, agreement.ID, party.email, party.userType)
		r := verifyOtp(t, env, otpID, code)
		require.Equal(t, http.StatusOK, r.StatusCode)
		r.Body.Close()
	}

	resp, err = http.Get(env.server.URL + "/api/agreements/verify/" + agreement.AgreementNumber)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Verified  bool `json:"verified"`
		Agreement struct {
			AgreementNumber string `json:"agreementNumber"`
			TenantName      string `json:"tenantName"`
		} `json:"agreement"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Verified)
	assert.Equal(t, agreement.AgreementNumber, out.Agreement.AgreementNumber)
	assert.Equal(t, "Asha Rao", out.Agreement.TenantName)

	resp, err = http.Get(env.server.URL + "/api/agreements/verify/SR-2026-999999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileGenerateURLAndDownload(t *testing.T) {
	env := newTestEnv(t)
	agreement := createAgreement(t, env)

	payload := fmt.Sprintf(`{"agreementId":%q,"fileType":"tenant","email":%q}`,
		agreement.ID, agreement.TenantEmail)
	resp, err := http.Post(env.server.URL+"/api/files/generate-url", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data struct {
			SignedURL string `json:"signedUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Data.SignedURL)

	download, err := http.Get(env.server.URL + out.Data.SignedURL)
	require.NoError(t, err)
	defer download.Body.Close()
	assert.Equal(t, http.StatusOK, download.StatusCode)
	assert.Contains(t, download.Header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, "nosniff", download.Header.Get("X-Content-Type-Options"))

	// Tampering with the signature gets a 401.
	tampered := strings.Replace(out.Data.SignedURL, "signature=", "signature=0", 1)
	denied, err := http.Get(env.server.URL + tampered)
	require.NoError(t, err)
	denied.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)
}

func TestFileGenerateURLForbiddenForOtherParty(t *testing.T) {
	env := newTestEnv(t)
	agreement := createAgreement(t, env)

	payload := fmt.Sprintf(`{"agreementId":%q,"fileType":"tenant","email":%q}`,
		agreement.ID, agreement.LandlordEmail)
	resp, err := http.Post(env.server.URL+"/api/files/generate-url", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownEndpointReturnsJSON404(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestSearchUnavailableWithoutBackend(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/agreements/search?q=lake")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
