package scylla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"saferental-service/internal/model"
	"saferental-service/internal/util"
)

// ErrNotFound is returned when a record does not exist. The service layer
// translates it into its own taxonomy.
var ErrNotFound = errors.New("record not found")

type AgreementRepository struct {
	client *ScyllaClient
}

func NewAgreementRepository(client *ScyllaClient, logger *zap.Logger) *AgreementRepository {
	return &AgreementRepository{client: client}
}

// Create persists the agreement and its number lookup row. The lookup insert
// uses IF NOT EXISTS so a duplicate agreement number can never silently
// overwrite an existing mapping.
func (r *AgreementRepository) Create(ctx context.Context, a *model.Agreement) error {
	lookup := r.client.Query(`
	INSERT INTO agreements_by_number (agreement_number, agreement_id)
	VALUES (?, ?) IF NOT EXISTS`, a.AgreementNumber, a.ID).WithContext(ctx)

	applied, err := lookup.MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to reserve agreement number: %w", err)
	}
	if !applied {
		return fmt.Errorf("agreement number already in use: %s", a.AgreementNumber)
	}

	query := r.client.Prepared.CreateAgreement.Bind(
		a.ID, a.AgreementNumber,
		a.TenantFullName, a.TenantEmail, a.TenantPhone, a.TenantDob, a.TenantAddress, a.TenantIDProofURL,
		a.LandlordFullName, a.LandlordEmail, a.LandlordPhone, a.LandlordAddress, a.LandlordIDProofURL,
		a.PropertyAddress, a.MonthlyRent, a.SecurityDeposit, a.LeaseDuration, a.LeaseStartDate, a.LeaseEndDate,
		a.TenantVerified, a.LandlordVerified, a.IsActive, a.PDFURL, a.DeliveryStatus,
		a.CreatedAt, a.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create agreement",
			zap.String("agreement_id", a.ID),
			zap.String("agreement_number", a.AgreementNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create agreement: %w", err)
	}

	util.Info("Agreement created",
		zap.String("agreement_id", a.ID),
		zap.String("agreement_number", a.AgreementNumber))

	return nil
}

func (r *AgreementRepository) GetByID(ctx context.Context, id string) (*model.Agreement, error) {
	query := r.client.Prepared.GetAgreementByID.Bind(id).WithContext(ctx)
	a, err := scanAgreement(query)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agreement by id: %w", err)
	}
	return a, nil
}

func (r *AgreementRepository) GetByNumber(ctx context.Context, agreementNumber string) (*model.Agreement, error) {
	var id string
	err := r.client.Prepared.GetNumberLookup.Bind(agreementNumber).WithContext(ctx).Scan(&id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve agreement number: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update applies the permitted partial fields and bumps updated_at. Flags can
// only be set to true through this path; AgreementUpdate carries no way to
// clear them.
func (r *AgreementRepository) Update(ctx context.Context, id string, update model.AgreementUpdate) (*model.Agreement, error) {
	assignments := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.TenantVerified != nil {
		assignments = append(assignments, "tenant_verified = ?")
		args = append(args, *update.TenantVerified)
	}
	if update.LandlordVerified != nil {
		assignments = append(assignments, "landlord_verified = ?")
		args = append(args, *update.LandlordVerified)
	}
	if update.PDFURL != nil {
		assignments = append(assignments, "pdf_url = ?")
		args = append(args, *update.PDFURL)
	}
	if update.DeliveryStatus != nil {
		assignments = append(assignments, "delivery_status = ?")
		args = append(args, *update.DeliveryStatus)
	}

	// Scylla UPDATE is an upsert; check existence first so unknown ids
	// surface as not-found instead of materializing ghost rows.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}

	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE agreements SET %s WHERE id = ?", strings.Join(assignments, ", "))

	query := r.client.Query(stmt, args...).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update agreement",
			zap.String("agreement_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update agreement: %w", err)
	}

	return r.GetByID(ctx, id)
}

// ListByParty returns every agreement where the email is the tenant's or the
// landlord's. Two filtered scans merged in memory; CQL has no OR. Unbounded,
// matching the dashboard's behavior. Ordering is the service's concern.
func (r *AgreementRepository) ListByParty(ctx context.Context, email string) ([]*model.Agreement, error) {
	seen := make(map[string]bool)
	var out []*model.Agreement

	for _, column := range []string{"tenant_email", "landlord_email"} {
		stmt := fmt.Sprintf(`SELECT %s FROM agreements WHERE %s = ? ALLOW FILTERING`, agreementColumns, column)
		iter := r.client.Query(stmt, email).WithContext(ctx).Iter()

		for {
			a, ok := scanAgreementIter(iter)
			if !ok {
				break
			}
			if !seen[a.ID] {
				seen[a.ID] = true
				out = append(out, a)
			}
		}
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("failed to list agreements: %w", err)
		}
	}

	return out, nil
}

// ClaimDelivery flips delivery_status from unset to pending with a
// lightweight transaction. Exactly one of any number of racing callers
// observes applied=true.
func (r *AgreementRepository) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	query := r.client.Query(`
	UPDATE agreements SET delivery_status = ?, updated_at = ?
	WHERE id = ? IF delivery_status = null`,
		model.DeliveryStatusPending, time.Now().UTC(), id).WithContext(ctx)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return applied, nil
}

func scanAgreement(query *gocql.Query) (*model.Agreement, error) {
	a := &model.Agreement{}
	err := query.Scan(
		&a.ID, &a.AgreementNumber,
		&a.TenantFullName, &a.TenantEmail, &a.TenantPhone, &a.TenantDob, &a.TenantAddress, &a.TenantIDProofURL,
		&a.LandlordFullName, &a.LandlordEmail, &a.LandlordPhone, &a.LandlordAddress, &a.LandlordIDProofURL,
		&a.PropertyAddress, &a.MonthlyRent, &a.SecurityDeposit, &a.LeaseDuration, &a.LeaseStartDate, &a.LeaseEndDate,
		&a.TenantVerified, &a.LandlordVerified, &a.IsActive, &a.PDFURL, &a.DeliveryStatus,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAgreementIter(iter *gocql.Iter) (*model.Agreement, bool) {
	a := &model.Agreement{}
	ok := iter.Scan(
		&a.ID, &a.AgreementNumber,
		&a.TenantFullName, &a.TenantEmail, &a.TenantPhone, &a.TenantDob, &a.TenantAddress, &a.TenantIDProofURL,
		&a.LandlordFullName, &a.LandlordEmail, &a.LandlordPhone, &a.LandlordAddress, &a.LandlordIDProofURL,
		&a.PropertyAddress, &a.MonthlyRent, &a.SecurityDeposit, &a.LeaseDuration, &a.LeaseStartDate, &a.LeaseEndDate,
		&a.TenantVerified, &a.LandlordVerified, &a.IsActive, &a.PDFURL, &a.DeliveryStatus,
		&a.CreatedAt, &a.UpdatedAt)
	if !ok {
		return nil, false
	}
	return a, true
}
