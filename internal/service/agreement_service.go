package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"saferental-service/internal/audit"
	"saferental-service/internal/events"
	"saferental-service/internal/metrics"
	"saferental-service/internal/model"
	"saferental-service/internal/repository/scylla"
	"saferental-service/internal/search"
	"saferental-service/internal/util"
)

// CreateAgreementInput carries the caller-supplied fields for a new
// agreement. ID-proof URLs come from the upload store, everything else from
// the request body.
type CreateAgreementInput struct {
	TenantFullName   string
	TenantEmail      string
	TenantPhone      string
	TenantDob        string
	TenantAddress    string
	TenantIDProofURL string

	LandlordFullName   string
	LandlordEmail      string
	LandlordPhone      string
	LandlordAddress    string
	LandlordIDProofURL string

	PropertyAddress string
	MonthlyRent     string
	SecurityDeposit string
	LeaseDuration   string
	LeaseStartDate  string
	LeaseEndDate    string
}

// VerifiedSummary is the public projection returned by number lookups. It
// deliberately omits contact details and document references.
type VerifiedSummary struct {
	AgreementNumber string    `json:"agreementNumber"`
	TenantName      string    `json:"tenantName"`
	LandlordName    string    `json:"landlordName"`
	PropertyAddress string    `json:"propertyAddress"`
	MonthlyRent     string    `json:"monthlyRent"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AgreementService owns the agreement lifecycle: creation with a
// freshly allocated number, reads, party listings and the public
// verified-lookup projection.
type AgreementService struct {
	repo      model.AgreementRepository
	allocator model.SequenceAllocator
	indexer   *search.Indexer
	publisher *events.Publisher
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
}

func NewAgreementService(
	repo model.AgreementRepository,
	allocator model.SequenceAllocator,
	indexer *search.Indexer,
	publisher *events.Publisher,
	recorder *audit.Recorder,
	m *metrics.Metrics,
) *AgreementService {
	return &AgreementService{
		repo:      repo,
		allocator: allocator,
		indexer:   indexer,
		publisher: publisher,
		recorder:  recorder,
		metrics:   m,
	}
}

// Create validates the input, allocates an agreement number and persists the
// record. Verification flags start false and the delivery marker unset.
func (s *AgreementService) Create(ctx context.Context, in CreateAgreementInput) (*model.Agreement, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	number, err := s.allocator.NextAgreementNumber(ctx)
	if err != nil {
		util.Error("agreement number allocation failed", util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrNumberUnavailable, err)
	}

	now := time.Now().UTC()
	agreement := &model.Agreement{
		ID:              uuid.New().String(),
		AgreementNumber: number,

		TenantFullName:   in.TenantFullName,
		TenantEmail:      in.TenantEmail,
		TenantPhone:      in.TenantPhone,
		TenantDob:        in.TenantDob,
		TenantAddress:    in.TenantAddress,
		TenantIDProofURL: in.TenantIDProofURL,

		LandlordFullName:   in.LandlordFullName,
		LandlordEmail:      in.LandlordEmail,
		LandlordPhone:      in.LandlordPhone,
		LandlordAddress:    in.LandlordAddress,
		LandlordIDProofURL: in.LandlordIDProofURL,

		PropertyAddress: in.PropertyAddress,
		MonthlyRent:     in.MonthlyRent,
		SecurityDeposit: in.SecurityDeposit,
		LeaseDuration:   in.LeaseDuration,
		LeaseStartDate:  in.LeaseStartDate,
		LeaseEndDate:    in.LeaseEndDate,

		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, agreement); err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}

	s.metrics.IncAgreementsCreated()
	s.indexer.Index(ctx, agreement)
	s.publisher.Publish(ctx, events.Event{
		Type:            events.TypeAgreementCreated,
		AgreementID:     agreement.ID,
		AgreementNumber: agreement.AgreementNumber,
	})

	util.Info("agreement created",
		zap.String("agreement_id", agreement.ID),
		zap.String("agreement_number", agreement.AgreementNumber))

	return agreement, nil
}

// GetByID returns the full agreement record.
func (s *AgreementService) GetByID(ctx context.Context, id string) (*model.Agreement, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: agreement id is required", ErrValidation)
	}
	agreement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, fmt.Errorf("%w: agreement %s", ErrNotFound, id)
		}
		return nil, err
	}
	return agreement, nil
}

// VerifyByNumber looks up an agreement by its public number and returns the
// redacted summary. Agreements that are not yet verified by both parties are
// reported as such rather than exposed.
func (s *AgreementService) VerifyByNumber(ctx context.Context, agreementNumber string) (*VerifiedSummary, error) {
	if agreementNumber == "" {
		return nil, fmt.Errorf("%w: agreement number is required", ErrValidation)
	}
	agreement, err := s.repo.GetByNumber(ctx, agreementNumber)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, fmt.Errorf("%w: agreement number %s", ErrNotFound, agreementNumber)
		}
		return nil, err
	}
	if !agreement.FullyVerified() {
		return nil, fmt.Errorf("%w: %s", ErrNotFullyVerified, agreementNumber)
	}
	return &VerifiedSummary{
		AgreementNumber: agreement.AgreementNumber,
		TenantName:      agreement.TenantFullName,
		LandlordName:    agreement.LandlordFullName,
		PropertyAddress: agreement.PropertyAddress,
		MonthlyRent:     agreement.MonthlyRent,
		CreatedAt:       agreement.CreatedAt,
	}, nil
}

// ListByParty returns every agreement where the email exactly matches the
// tenant or landlord contact, newest first.
func (s *AgreementService) ListByParty(ctx context.Context, email string) ([]*model.Agreement, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	agreements, err := s.repo.ListByParty(ctx, email)
	if err != nil {
		return nil, err
	}
	sort.Slice(agreements, func(i, j int) bool {
		return agreements[i].CreatedAt.After(agreements[j].CreatedAt)
	})
	return agreements, nil
}

// Search runs a free-text query against the agreement index.
func (s *AgreementService) Search(ctx context.Context, query string) ([]search.Result, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	return s.indexer.Search(ctx, query, 25)
}

func validateCreateInput(in CreateAgreementInput) error {
	required := []struct {
		name  string
		value string
	}{
		{"tenantFullName", in.TenantFullName},
		{"tenantEmail", in.TenantEmail},
		{"tenantPhone", in.TenantPhone},
		{"tenantDob", in.TenantDob},
		{"tenantAddress", in.TenantAddress},
		{"tenantIdProof", in.TenantIDProofURL},
		{"landlordFullName", in.LandlordFullName},
		{"landlordEmail", in.LandlordEmail},
		{"landlordPhone", in.LandlordPhone},
		{"landlordAddress", in.LandlordAddress},
		{"landlordIdProof", in.LandlordIDProofURL},
		{"propertyAddress", in.PropertyAddress},
		{"monthlyRent", in.MonthlyRent},
		{"leaseDuration", in.LeaseDuration},
		{"leaseStartDate", in.LeaseStartDate},
		{"leaseEndDate", in.LeaseEndDate},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
	}
	return nil
}
