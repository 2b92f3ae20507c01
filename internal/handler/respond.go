package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"saferental-service/internal/files"
	"saferental-service/internal/search"
	"saferental-service/internal/service"
	"saferental-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		zap.Int("status_code", statusCode),
		zap.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps service and file-gateway errors to HTTP status codes.
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrOtpExpired),
		errors.Is(err, service.ErrCodeMismatch),
		errors.Is(err, service.ErrNotFullyVerified),
		errors.Is(err, files.ErrInvalidFileType),
		errors.Is(err, files.ErrUnsupportedType),
		errors.Is(err, files.ErrFileTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, files.ErrAgreementMissing),
		errors.Is(err, files.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, files.ErrExpiredURL),
		errors.Is(err, files.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, files.ErrForbidden),
		errors.Is(err, files.ErrPathEscape):
		return http.StatusForbidden
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, search.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
