package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Only the generic message reaches the client; the cause goes to the log.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, message := utils.ErrorStatus(err)
	errType := services.GetErrorType(err)

	switch {
	case status >= http.StatusInternalServerError:
		if errType == "" {
			logger.Error("unhandled error type", zap.Error(err))
		} else {
			logger.Error("internal server error",
				zap.String("error_type", string(errType)),
				zap.Error(err))
		}
	default:
		logger.Debug("handled service error",
			zap.String("error_type", string(errType)),
			zap.Int("status", status),
			zap.Any("details", services.GetErrorDetails(err)))
	}

	if err := utils.WriteError(w, status, message); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}
