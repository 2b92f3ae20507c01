package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"saferental-service/internal/files"
	"saferental-service/internal/model"
	"saferental-service/internal/service"
	"saferental-service/internal/util"
)

// AgreementHandler handles HTTP requests for agreement operations.
type AgreementHandler struct {
	agreements *service.AgreementService
	store      *files.Store
	logger     *zap.Logger
}

func NewAgreementHandler(agreements *service.AgreementService, store *files.Store, logger *zap.Logger) *AgreementHandler {
	return &AgreementHandler{
		agreements: agreements,
		store:      store,
		logger:     logger,
	}
}

// RegisterRoutes registers all agreement routes.
func (h *AgreementHandler) RegisterRoutes(router chi.Router) {
	router.Route("/agreements", func(r chi.Router) {
		r.Post("/", h.CreateAgreement)
		r.Get("/search", h.SearchAgreements)
		r.Get("/verify/{agreementNumber}", h.VerifyAgreement)
		r.Get("/user/{email}", h.GetUserAgreements)
		r.Get("/{agreementID}", h.GetAgreement)
	})
}

// CreateAgreement accepts a multipart form carrying the agreement fields and
// both parties' identity documents.
func (h *AgreementHandler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid multipart form")
		return
	}

	tenantProof, err := h.saveUpload(r, "tenantIdProof", model.UserTypeTenant)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Tenant ID proof upload failed")
		return
	}
	landlordProof, err := h.saveUpload(r, "landlordIdProof", model.UserTypeLandlord)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Landlord ID proof upload failed")
		return
	}

	in := service.CreateAgreementInput{
		TenantFullName:   r.FormValue("tenantFullName"),
		TenantEmail:      r.FormValue("tenantEmail"),
		TenantPhone:      r.FormValue("tenantPhone"),
		TenantDob:        r.FormValue("tenantDob"),
		TenantAddress:    r.FormValue("tenantAddress"),
		TenantIDProofURL: tenantProof,

		LandlordFullName:   r.FormValue("landlordFullName"),
		LandlordEmail:      r.FormValue("landlordEmail"),
		LandlordPhone:      r.FormValue("landlordPhone"),
		LandlordAddress:    r.FormValue("landlordAddress"),
		LandlordIDProofURL: landlordProof,

		PropertyAddress: r.FormValue("propertyAddress"),
		MonthlyRent:     r.FormValue("monthlyRent"),
		SecurityDeposit: r.FormValue("securityDeposit"),
		LeaseDuration:   r.FormValue("leaseDuration"),
		LeaseStartDate:  r.FormValue("leaseStartDate"),
		LeaseEndDate:    r.FormValue("leaseEndDate"),
	}

	agreement, err := h.agreements.Create(ctx, in)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create agreement")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(agreement, "Agreement created successfully"))
	h.logger.Info("Agreement created via HTTP",
		util.String("agreement_id", agreement.ID),
		util.String("agreement_number", agreement.AgreementNumber),
		util.Duration("duration", time.Since(startTime)),
	)
}

// GetAgreement returns the full agreement record by id.
func (h *AgreementHandler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")

	agreement, err := h.agreements.GetByID(r.Context(), agreementID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to fetch agreement")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(agreement, ""))
}

// VerifyAgreement is the public lookup by agreement number. It only exposes
// the redacted summary, and only for fully verified agreements.
func (h *AgreementHandler) VerifyAgreement(w http.ResponseWriter, r *http.Request) {
	agreementNumber := chi.URLParam(r, "agreementNumber")

	summary, err := h.agreements.VerifyByNumber(r.Context(), agreementNumber)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Agreement verification lookup failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"verified":  true,
		"agreement": summary,
	})
}

// GetUserAgreements lists agreements where the email matches either party.
func (h *AgreementHandler) GetUserAgreements(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	agreements, err := h.agreements.ListByParty(r.Context(), email)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list agreements")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(agreements, ""))
}

// SearchAgreements runs a free-text query against the search index.
func (h *AgreementHandler) SearchAgreements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := h.agreements.Search(r.Context(), query)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Search failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(results, ""))
}

func (h *AgreementHandler) saveUpload(r *http.Request, field, role string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("%w: %s file is required", service.ErrValidation, field)
	}
	defer file.Close()

	return h.store.Save(role, header.Filename, file)
}
