package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"saferental-service/internal/audit"
	"saferental-service/internal/files"
	"saferental-service/internal/metrics"
	"saferental-service/internal/util"
)

// FileHandler exposes signed-URL issuance and the download endpoint it
// authorizes.
type FileHandler struct {
	gateway  *files.Gateway
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewFileHandler(gateway *files.Gateway, recorder *audit.Recorder, m *metrics.Metrics, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		gateway:  gateway,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

type generateURLRequest struct {
	AgreementID string `json:"agreementId"`
	FileType    string `json:"fileType"`
	Email       string `json:"email"`
}

// RegisterRoutes registers all file routes.
func (h *FileHandler) RegisterRoutes(router chi.Router) {
	router.Route("/files", func(r chi.Router) {
		r.Post("/generate-url", h.GenerateURL)
		r.Get("/download/{agreementID}/{fileType}", h.Download)
	})
}

// GenerateURL authorizes the requester and returns a time-boxed signed URL
// for one party's identity document.
func (h *FileHandler) GenerateURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.AgreementID == "" || req.FileType == "" || req.Email == "" {
		err := fmt.Errorf("agreementId, fileType and email are required")
		respondWithError(w, http.StatusBadRequest, err, "Missing required fields")
		return
	}

	signed, err := h.gateway.IssueSignedURL(ctx, req.AgreementID, req.FileType, req.Email)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to generate signed URL")
		return
	}

	h.metrics.IncSignedURLIssued()
	respondWithJSON(w, http.StatusOK, successResponse(signed, ""))
}

// Download validates the signed URL and streams the document back. The file
// always comes down as an attachment; browsers never render it inline.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID := chi.URLParam(r, "agreementID")
	fileType := chi.URLParam(r, "fileType")

	query := r.URL.Query()
	signature := query.Get("signature")
	email := query.Get("email")
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid expires parameter")
		return
	}

	path, err := h.gateway.ResolveSignedURL(ctx, agreementID, fileType, signature, expires, email)
	if err != nil {
		h.metrics.IncFileDownload("denied")
		h.recorder.Record(ctx, audit.EventFileAccess, agreementID, fileType, "", err.Error())
		respondWithError(w, getStatusCode(err), err, "File download rejected")
		return
	}

	h.metrics.IncFileDownload("success")
	h.recorder.Record(ctx, audit.EventFileAccess, agreementID, fileType, "", "granted")
	h.logger.Info("File download authorized",
		util.String("agreement_id", agreementID),
		util.String("file_type", fileType),
	)

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
