package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var errLinkNotFound = ErrorResponse{
	Error: "Short link not found",
	Code:  "LINK_NOT_FOUND",
}

func invalidPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid request format",
		Code:  "INVALID_JSON",
	})
}

// handleError maps service and repository errors to HTTP responses.
// Only infrastructure faults are logged at error level.
func handleError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid URL format",
			Code:  "INVALID_URL",
		})
	case errors.Is(err, service.ErrInvalidShortCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Short code must be 1-50 letters, digits, '-' or '_'",
			Code:  "INVALID_SHORT_CODE",
		})
	case errors.Is(err, service.ErrInvalidExpiry):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid expires_at",
			Code:    "INVALID_EXPIRES_AT",
			Details: err.Error(),
		})
	case errors.Is(err, service.ErrEmptyTitles), errors.Is(err, service.ErrTooManyTitles):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_TITLES",
		})
	case errors.Is(err, repository.ErrShortCodeTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Short code already in use",
			Code:  "SHORT_CODE_TAKEN",
		})
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, errLinkNotFound)
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Invalid email or password",
			Code:  "INVALID_CREDENTIALS",
		})
	case errors.Is(err, service.ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Email already registered",
			Code:  "EMAIL_EXISTS",
		})
	case errors.Is(err, service.ErrIDGenerationMax):
		logger.Error("ID generation max attempts reached", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "ID_GENERATION_FAILED",
		})
	case errors.Is(err, repository.ErrDatabaseError):
		logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "DB_ERROR",
		})
	default:
		logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
