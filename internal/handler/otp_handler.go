package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"saferental-service/internal/service"
	"saferental-service/internal/util"
)

// OTPHandler handles HTTP requests for OTP issuance and verification.
type OTPHandler struct {
	otps   *service.OTPService
	logger *zap.Logger
}

func NewOTPHandler(otps *service.OTPService, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		otps:   otps,
		logger: logger,
	}
}

// RegisterRoutes registers all OTP routes.
func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/send", h.SendOTP)
		r.Post("/verify", h.VerifyOTP)
	})
}

// SendOTP issues a fresh code for one party of an agreement.
func (h *OTPHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.SendOtpInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	otpID, err := h.otps.Send(ctx, req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to send OTP")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"otpId": otpID}, "OTP sent successfully"))
	h.logger.Info("OTP sent via HTTP",
		util.String("otp_id", otpID),
		util.String("agreement_id", req.AgreementID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyOTP consumes a code attempt.
func (h *OTPHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.VerifyOtpInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.otps.Verify(ctx, req); err != nil {
		respondWithError(w, getStatusCode(err), err, "OTP verification failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]bool{"verified": true}, "OTP verified successfully"))
	h.logger.Info("OTP verified via HTTP",
		zap.String("otp_id", req.OtpID),
	)
}
