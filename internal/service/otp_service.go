package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"saferental-service/internal/audit"
	"saferental-service/internal/config"
	"saferental-service/internal/events"
	"saferental-service/internal/hashing"
	"saferental-service/internal/metrics"
	"saferental-service/internal/model"
	"saferental-service/internal/notify"
	"saferental-service/internal/repository/scylla"
	"saferental-service/internal/util"
)

// OtpThrottle caps issuance per contact and guesses per code. A nil throttle
// disables rate limiting (no Redis configured).
type OtpThrottle interface {
	IncrementSends(contactInfo string, window time.Duration) (int, error)
	IncrementAttempts(otpID string, window time.Duration) (int, error)
	ResetAttempts(otpID string) error
}

// DocumentGenerator renders the final agreement document.
type DocumentGenerator interface {
	Generate(agreement *model.Agreement) ([]byte, error)
}

// AgreementMailer delivers the rendered document to both parties.
type AgreementMailer interface {
	SendAgreementPdf(ctx context.Context, tenantEmail, landlordEmail, agreementNumber string, pdfData []byte) error
}

// SendOtpInput identifies who is being verified and over which channel.
type SendOtpInput struct {
	AgreementID string `json:"agreementId"`
	ContactInfo string `json:"contactInfo"`
	ContactType string `json:"contactType"`
	UserType    string `json:"userType"`
}

// VerifyOtpInput carries a code attempt against a previously issued OTP.
type VerifyOtpInput struct {
	OtpID string `json:"otpId"`
	Code  string `json:"otpCode"`
}

// OTPService owns the OTP state machine: issuance with delivery-before-
// persistence, single-use consumption, and the exactly-once agreement
// delivery that fires when the second party verifies.
type OTPService struct {
	otps       model.OtpRepository
	agreements model.AgreementRepository
	hasher     *hashing.Hasher
	transports notify.Transports
	throttle   OtpThrottle
	generator  DocumentGenerator
	mailer     AgreementMailer
	recorder   *audit.Recorder
	publisher  *events.Publisher
	metrics    *metrics.Metrics
	cfg        config.OTPConfig
}

func NewOTPService(
	otps model.OtpRepository,
	agreements model.AgreementRepository,
	hasher *hashing.Hasher,
	transports notify.Transports,
	throttle OtpThrottle,
	generator DocumentGenerator,
	mailer AgreementMailer,
	recorder *audit.Recorder,
	publisher *events.Publisher,
	m *metrics.Metrics,
	cfg config.OTPConfig,
) *OTPService {
	return &OTPService{
		otps:       otps,
		agreements: agreements,
		hasher:     hasher,
		transports: transports,
		throttle:   throttle,
		generator:  generator,
		mailer:     mailer,
		recorder:   recorder,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
	}
}

// Send issues a fresh OTP for one party of an agreement. The code goes out
// over the transport before anything is persisted: a delivery failure leaves
// no record behind, and the caller simply retries.
func (s *OTPService) Send(ctx context.Context, in SendOtpInput) (string, error) {
	if err := validateSendInput(in); err != nil {
		return "", err
	}

	if _, err := s.agreements.GetByID(ctx, in.AgreementID); err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", fmt.Errorf("%w: agreement %s", ErrNotFound, in.AgreementID)
		}
		return "", err
	}

	if s.throttle != nil {
		sends, err := s.throttle.IncrementSends(in.ContactInfo, s.cfg.TTL)
		if err != nil {
			util.Warn("otp send throttle unavailable", util.ErrorField(err))
		} else if sends > s.cfg.MaxSends {
			s.metrics.IncOtpVerify("throttled")
			return "", fmt.Errorf("%w: otp sends for %s", ErrTooManyRequests, in.ContactInfo)
		}
	}

	if prior, err := s.otps.FindValid(ctx, in.AgreementID, in.ContactInfo, in.UserType); err == nil {
		// The old code stays redeemable until it expires.
		util.Info("superseding valid otp",
			zap.String("agreement_id", in.AgreementID),
			zap.String("prior_otp_id", prior.ID))
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}

	transport, ok := s.transports.For(in.ContactType)
	if !ok {
		return "", fmt.Errorf("%w: unsupported contact type %s", ErrValidation, in.ContactType)
	}
	if err := transport.Send(ctx, in.ContactInfo, code); err != nil {
		util.Error("otp delivery failed",
			zap.String("agreement_id", in.AgreementID),
			zap.String("contact_type", in.ContactType),
			util.ErrorField(err))
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash otp code: %w", err)
	}

	now := time.Now().UTC()
	otp := &model.OtpVerification{
		ID:          uuid.New().String(),
		AgreementID: in.AgreementID,
		ContactInfo: in.ContactInfo,
		ContactType: in.ContactType,
		UserType:    in.UserType,
		CodeHash:    codeHash,
		ExpiresAt:   now.Add(s.cfg.TTL),
		CreatedAt:   now,
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}

	s.metrics.IncOtpIssued(in.ContactType)
	s.recorder.Record(ctx, audit.EventOtpSent, in.AgreementID, in.UserType, in.ContactType, "")

	util.Info("otp issued",
		zap.String("otp_id", otp.ID),
		zap.String("agreement_id", in.AgreementID),
		zap.String("user_type", in.UserType))

	return otp.ID, nil
}

// Verify consumes an OTP. On the attempt that completes the second party's
// verification it also runs the delivery block: render the document, email
// both parties, record the outcome. Verification success is reported even
// when delivery fails; the failed status stays on the record for retries.
func (s *OTPService) Verify(ctx context.Context, in VerifyOtpInput) error {
	if in.OtpID == "" || in.Code == "" {
		return fmt.Errorf("%w: otpId and otpCode are required", ErrValidation)
	}

	otp, err := s.otps.GetByID(ctx, in.OtpID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.metrics.IncOtpVerify("not_found")
			return fmt.Errorf("%w: otp %s", ErrNotFound, in.OtpID)
		}
		return err
	}

	// Expiry first: a record past its window is inert no matter what else
	// is true of it.
	now := time.Now().UTC()
	if otp.Expired(now) {
		s.metrics.IncOtpVerify("expired")
		s.recorder.Record(ctx, audit.EventOtpRejected, otp.AgreementID, otp.UserType, otp.ContactType, "expired")
		return fmt.Errorf("%w: otp %s", ErrOtpExpired, in.OtpID)
	}

	if s.throttle != nil && !otp.Verified {
		attempts, err := s.throttle.IncrementAttempts(otp.ID, s.cfg.TTL)
		if err != nil {
			util.Warn("otp attempt throttle unavailable", util.ErrorField(err))
		} else if attempts > s.cfg.MaxAttempts {
			s.metrics.IncOtpVerify("throttled")
			s.recorder.Record(ctx, audit.EventOtpRejected, otp.AgreementID, otp.UserType, otp.ContactType, "attempt limit")
			return fmt.Errorf("%w: otp attempts for %s", ErrTooManyRequests, otp.ID)
		}
	}

	match, err := s.hasher.Verify(in.Code, otp.CodeHash)
	if err != nil {
		return fmt.Errorf("failed to verify otp code: %w", err)
	}
	if !match {
		s.metrics.IncOtpVerify("mismatch")
		s.recorder.Record(ctx, audit.EventOtpRejected, otp.AgreementID, otp.UserType, otp.ContactType, "code mismatch")
		return fmt.Errorf("%w: otp %s", ErrCodeMismatch, in.OtpID)
	}

	// A correct code against an already consumed record is a no-op success:
	// the party is verified either way, and retried requests stay harmless.
	if otp.Verified {
		s.metrics.IncOtpVerify("success")
		return nil
	}

	if _, err := s.otps.MarkVerified(ctx, otp.ID); err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if s.throttle != nil {
		if err := s.throttle.ResetAttempts(otp.ID); err != nil {
			util.Warn("failed to reset otp attempt counter", util.ErrorField(err))
		}
	}

	verified := true
	update := model.AgreementUpdate{}
	if otp.UserType == model.UserTypeLandlord {
		update.LandlordVerified = &verified
	} else {
		update.TenantVerified = &verified
	}
	agreement, err := s.agreements.Update(ctx, otp.AgreementID, update)
	if err != nil {
		return fmt.Errorf("failed to record party verification: %w", err)
	}

	s.metrics.IncOtpVerify("success")
	s.recorder.Record(ctx, audit.EventOtpVerified, otp.AgreementID, otp.UserType, otp.ContactType, "")
	s.publisher.Publish(ctx, events.Event{
		Type:            events.TypePartyVerified,
		AgreementID:     agreement.ID,
		AgreementNumber: agreement.AgreementNumber,
		UserType:        otp.UserType,
	})

	util.Info("party verified",
		zap.String("agreement_id", agreement.ID),
		zap.String("user_type", otp.UserType))

	if agreement.FullyVerified() {
		s.deliverAgreement(ctx, agreement)
	}
	return nil
}

// deliverAgreement runs once per agreement. The claim is a conditional write
// on the delivery marker, so concurrent second-party verifications race for
// it and exactly one proceeds.
func (s *OTPService) deliverAgreement(ctx context.Context, agreement *model.Agreement) {
	claimed, err := s.agreements.ClaimDelivery(ctx, agreement.ID)
	if err != nil {
		util.Error("delivery claim failed",
			zap.String("agreement_id", agreement.ID),
			util.ErrorField(err))
		return
	}
	if !claimed {
		return
	}

	status := model.DeliveryStatusDelivered
	update := model.AgreementUpdate{DeliveryStatus: &status}

	pdfData, err := s.generator.Generate(agreement)
	if err == nil {
		err = s.mailer.SendAgreementPdf(ctx, agreement.TenantEmail, agreement.LandlordEmail, agreement.AgreementNumber, pdfData)
	}

	if err != nil {
		status = model.DeliveryStatusFailed
		update = model.AgreementUpdate{DeliveryStatus: &status}
		util.Error("agreement delivery failed",
			zap.String("agreement_id", agreement.ID),
			zap.String("agreement_number", agreement.AgreementNumber),
			util.ErrorField(err))
		s.recorder.Record(ctx, audit.EventDeliveryFailed, agreement.ID, "", "", err.Error())
	} else {
		pdfName := fmt.Sprintf("generated-%s.pdf", agreement.AgreementNumber)
		update.PDFURL = &pdfName
		util.Info("agreement delivered",
			zap.String("agreement_id", agreement.ID),
			zap.String("agreement_number", agreement.AgreementNumber))
	}

	s.metrics.IncDelivery(status)
	eventType := events.TypeDelivered
	if status == model.DeliveryStatusFailed {
		eventType = events.TypeDeliveryFailed
	}
	s.publisher.Publish(ctx, events.Event{
		Type:            eventType,
		AgreementID:     agreement.ID,
		AgreementNumber: agreement.AgreementNumber,
	})

	if _, err := s.agreements.Update(ctx, agreement.ID, update); err != nil {
		util.Error("failed to record delivery outcome",
			zap.String("agreement_id", agreement.ID),
			util.ErrorField(err))
	}
}

// Reap deletes expired, unconsumed OTP records. Called on a timer by the
// server and on demand by the CLI.
func (s *OTPService) Reap(ctx context.Context) (int, error) {
	deleted, err := s.otps.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired otps: %w", err)
	}
	if deleted > 0 {
		util.Info("reaped expired otps", zap.Int("count", deleted))
	}
	return deleted, nil
}

func validateSendInput(in SendOtpInput) error {
	if in.AgreementID == "" || in.ContactInfo == "" || in.ContactType == "" || in.UserType == "" {
		return fmt.Errorf("%w: agreementId, contactInfo, contactType and userType are required", ErrValidation)
	}
	if in.ContactType != model.ContactTypeEmail && in.ContactType != model.ContactTypePhone {
		return fmt.Errorf("%w: contactType must be email or phone", ErrValidation)
	}
	if in.UserType != model.UserTypeTenant && in.UserType != model.UserTypeLandlord {
		return fmt.Errorf("%w: userType must be tenant or landlord", ErrValidation)
	}
	return nil
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
