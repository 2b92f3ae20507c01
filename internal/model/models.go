package model

import (
	"context"
	"time"
)

// Contact channels an OTP can be delivered over.
const (
	ContactTypeEmail = "email"
	ContactTypePhone = "phone"
)

// Verification parties on an agreement.
const (
	UserTypeTenant   = "tenant"
	UserTypeLandlord = "landlord"
)

// Delivery lifecycle of the generated agreement document. Empty means the
// agreement is not yet fully verified (or the final transition has not been
// claimed).
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// -------------------- AGREEMENT MODEL --------------------

type Agreement struct {
	ID              string `json:"id" db:"id"`                            // UUID
	AgreementNumber string `json:"agreementNumber" db:"agreement_number"` // SR-<year>-<seq>, immutable

	// Tenant details
	TenantFullName   string `json:"tenantFullName" db:"tenant_full_name"`
	TenantEmail      string `json:"tenantEmail" db:"tenant_email"`
	TenantPhone      string `json:"tenantPhone" db:"tenant_phone"`
	TenantDob        string `json:"tenantDob" db:"tenant_dob"` // ISO date string
	TenantAddress    string `json:"tenantAddress" db:"tenant_address"`
	TenantIDProofURL string `json:"tenantIdProofUrl" db:"tenant_id_proof_url"`

	// Landlord details
	LandlordFullName   string `json:"landlordFullName" db:"landlord_full_name"`
	LandlordEmail      string `json:"landlordEmail" db:"landlord_email"`
	LandlordPhone      string `json:"landlordPhone" db:"landlord_phone"`
	LandlordAddress    string `json:"landlordAddress" db:"landlord_address"`
	LandlordIDProofURL string `json:"landlordIdProofUrl" db:"landlord_id_proof_url"`

	// Lease terms. Dates carried as calendar values; ordering is not enforced.
	PropertyAddress string `json:"propertyAddress" db:"property_address"`
	MonthlyRent     string `json:"monthlyRent" db:"monthly_rent"`
	SecurityDeposit string `json:"securityDeposit,omitempty" db:"security_deposit"`
	LeaseDuration   string `json:"leaseDuration" db:"lease_duration"`
	LeaseStartDate  string `json:"leaseStartDate" db:"lease_start_date"`
	LeaseEndDate    string `json:"leaseEndDate" db:"lease_end_date"`

	// Verification state. Each flag flips to true exactly once and never
	// reverts.
	TenantVerified   bool `json:"tenantVerified" db:"tenant_verified"`
	LandlordVerified bool `json:"landlordVerified" db:"landlord_verified"`
	IsActive         bool `json:"isActive" db:"is_active"`

	// Delivery state. PDFURL stays empty until both parties verified and the
	// document was emailed out.
	PDFURL         string `json:"pdfUrl,omitempty" db:"pdf_url"`
	DeliveryStatus string `json:"deliveryStatus,omitempty" db:"delivery_status"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PartyEmail returns the on-file email for the given user type.
func (a *Agreement) PartyEmail(userType string) string {
	if userType == UserTypeLandlord {
		return a.LandlordEmail
	}
	return a.TenantEmail
}

// FullyVerified reports whether both parties completed OTP verification.
func (a *Agreement) FullyVerified() bool {
	return a.TenantVerified && a.LandlordVerified
}

// AgreementUpdate carries the only fields the core is allowed to mutate after
// creation. Nil pointers leave the stored value untouched; there is no way to
// un-set a verification flag through this type.
type AgreementUpdate struct {
	TenantVerified   *bool
	LandlordVerified *bool
	PDFURL           *string
	DeliveryStatus   *string
}

// -------------------- OTP MODEL --------------------

type OtpVerification struct {
	ID          string    `json:"id" db:"id"` // UUID
	AgreementID string    `json:"agreementId" db:"agreement_id"`
	ContactInfo string    `json:"contactInfo" db:"contact_info"`
	ContactType string    `json:"contactType" db:"contact_type"`
	UserType    string    `json:"userType" db:"user_type"`
	CodeHash    string    `json:"-" db:"code_hash"` // argon2id, never the raw code
	Verified    bool      `json:"verified" db:"verified"`
	ExpiresAt   time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Expired reports whether the record is past its window at the given instant.
func (o *OtpVerification) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// -------------------- REPOSITORY INTERFACES --------------------

// SequenceAllocator produces globally unique, year-scoped agreement numbers.
type SequenceAllocator interface {
	NextAgreementNumber(ctx context.Context) (string, error)
}

// AgreementRepository defines persistence for agreement records.
type AgreementRepository interface {
	Create(ctx context.Context, agreement *Agreement) error
	GetByID(ctx context.Context, id string) (*Agreement, error)
	GetByNumber(ctx context.Context, agreementNumber string) (*Agreement, error)
	Update(ctx context.Context, id string, update AgreementUpdate) (*Agreement, error)
	ListByParty(ctx context.Context, email string) ([]*Agreement, error)

	// ClaimDelivery atomically flips the delivery marker from unset to
	// pending. Exactly one concurrent caller observes true; only that caller
	// may run the generate-and-deliver block.
	ClaimDelivery(ctx context.Context, id string) (bool, error)
}

// OtpRepository defines persistence for one-time codes.
type OtpRepository interface {
	Create(ctx context.Context, otp *OtpVerification) error
	GetByID(ctx context.Context, id string) (*OtpVerification, error)
	FindValid(ctx context.Context, agreementID, contactInfo, userType string) (*OtpVerification, error)
	MarkVerified(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
