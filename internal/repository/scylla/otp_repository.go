package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"saferental-service/internal/model"
	"saferental-service/internal/util"
)

type OtpRepository struct {
	client *ScyllaClient
}

func NewOtpRepository(client *ScyllaClient, logger *zap.Logger) *OtpRepository {
	return &OtpRepository{client: client}
}

func (r *OtpRepository) Create(ctx context.Context, otp *model.OtpVerification) error {
	query := r.client.Prepared.CreateOtp.Bind(
		otp.ID, otp.AgreementID, otp.ContactInfo, otp.ContactType, otp.UserType,
		otp.CodeHash, otp.Verified, otp.ExpiresAt, otp.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create OTP record",
			zap.String("otp_id", otp.ID),
			zap.String("agreement_id", otp.AgreementID),
			zap.Error(err))
		return fmt.Errorf("failed to create OTP record: %w", err)
	}

	util.Info("OTP record created",
		zap.String("otp_id", otp.ID),
		zap.String("agreement_id", otp.AgreementID),
		zap.String("user_type", otp.UserType),
		zap.Time("expires_at", otp.ExpiresAt))

	return nil
}

func (r *OtpRepository) GetByID(ctx context.Context, id string) (*model.OtpVerification, error) {
	otp := &model.OtpVerification{}
	query := r.client.Prepared.GetOtpByID.Bind(id).WithContext(ctx)

	err := query.Scan(&otp.ID, &otp.AgreementID, &otp.ContactInfo, &otp.ContactType,
		&otp.UserType, &otp.CodeHash, &otp.Verified, &otp.ExpiresAt, &otp.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get OTP record: %w", err)
	}

	return otp, nil
}

// FindValid returns the newest unconsumed, unexpired record for the
// (agreement, contact, role) triple, or ErrNotFound.
func (r *OtpRepository) FindValid(ctx context.Context, agreementID, contactInfo, userType string) (*model.OtpVerification, error) {
	iter := r.client.Query(`
	SELECT id, agreement_id, contact_info, contact_type, user_type, code_hash, verified, expires_at, created_at
	FROM otp_verifications WHERE agreement_id = ? ALLOW FILTERING`, agreementID).WithContext(ctx).Iter()

	now := time.Now().UTC()
	var latest *model.OtpVerification
	otp := &model.OtpVerification{}
	for iter.Scan(&otp.ID, &otp.AgreementID, &otp.ContactInfo, &otp.ContactType,
		&otp.UserType, &otp.CodeHash, &otp.Verified, &otp.ExpiresAt, &otp.CreatedAt) {
		if otp.ContactInfo == contactInfo && otp.UserType == userType &&
			!otp.Verified && !otp.Expired(now) {
			if latest == nil || otp.CreatedAt.After(latest.CreatedAt) {
				latest = otp
			}
		}
		otp = &model.OtpVerification{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan OTP records: %w", err)
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// MarkVerified idempotently sets verified=true. Returns false when the record
// does not exist. Expiry is the caller's check, not this method's.
func (r *OtpRepository) MarkVerified(ctx context.Context, id string) (bool, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	query := r.client.Prepared.MarkOtpVerified.Bind(id).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark OTP verified",
			zap.String("otp_id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark OTP verified: %w", err)
	}

	return true, nil
}

// DeleteExpired removes unverified records past their window. Storage
// hygiene only; correctness relies on lazy expiry checks.
func (r *OtpRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	iter := r.client.Query(`
	SELECT id, verified, expires_at FROM otp_verifications ALLOW FILTERING`).WithContext(ctx).Iter()

	var id string
	var verified bool
	var expiresAt time.Time
	deleted := 0

	for iter.Scan(&id, &verified, &expiresAt) {
		if verified || expiresAt.After(before) {
			continue
		}
		if err := r.client.Query(`DELETE FROM otp_verifications WHERE id = ?`, id).WithContext(ctx).Exec(); err != nil {
			iter.Close()
			return deleted, fmt.Errorf("failed to delete expired OTP: %w", err)
		}
		deleted++
	}
	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("failed to scan expired OTPs: %w", err)
	}

	if deleted > 0 {
		util.Info("Expired OTP records deleted", zap.Int("deleted_count", deleted))
	}
	return deleted, nil
}
