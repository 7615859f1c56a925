package middleware

import (
	"github.com/gin-gonic/gin"

	"sompos/internal/core/apperror"
	"sompos/internal/infrastructure/http/v1/dto"
	"sompos/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Causes behind an AppError are logged and never leave the process.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperror.AsAppError(err)
		switch {
		case !ok:
			logger.Error(c.Request.Context(), "unhandled error", "route", c.FullPath(), "error", err)
			appErr = apperror.NewInternal(err)
		case appErr.Err != nil:
			logger.Error(c.Request.Context(), "request failed",
				"route", c.FullPath(),
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		writeError(c, appErr)
	}
}

// writeError aborts with the {code, message, details} body. Internal errors
// carry only the request id so a caller can quote it.
func writeError(c *gin.Context, appErr *apperror.AppError) {
	body := dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	if appErr.Code == apperror.CodeInternal {
		body.Message = "Internal server error"
		body.Details = map[string]any{"request_id": c.GetString("request_id")}
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}
