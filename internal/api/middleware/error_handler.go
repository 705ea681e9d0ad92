// Package middleware provides HTTP middleware for storefleet.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]any         `json:"params,omitempty"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error as a
// consistent JSON response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("code", appErr.Code),
				zap.Int("status", appErr.HTTPStatus),
			}
			if appErr.Err != nil {
				fields = append(fields, zap.Error(appErr.Err))
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(appErr.Message, fields...)
			} else {
				logger.Debug(appErr.Message, fields...)
			}
			c.JSON(appErr.HTTPStatus, ErrorResponse{
				Code:        appErr.Code,
				Message:     appErr.Message,
				Params:      appErr.Params,
				FieldErrors: appErr.FieldErrors,
			})
			return
		}

		logger.Error("Unhandled request error", zap.String("request_id", rid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    apperrors.CodeInternalError,
			Message: "An internal error occurred",
		})
	}
}

// NoRoute answers unknown paths in the same error format.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    apperrors.CodeRouteNotFound,
			Message: "Route not found",
		})
	}
}
