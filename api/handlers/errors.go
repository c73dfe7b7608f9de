// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuel1/agi-diy/internal/model"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendModelError maps a supervisor or repository error to its HTTP status.
func sendModelError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrAgentIDRequired), errors.Is(err, model.ErrWorkdirNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrAgentNotFound), errors.Is(err, model.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAgentExists), errors.Is(err, model.ErrAgentTerminated):
		status = http.StatusConflict
	}
	sendError(c, status, model.ErrorCode(err), err.Error())
}
