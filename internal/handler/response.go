package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err with the status carried by an AppError, 500 otherwise.
// Internal details never leave the process.
func Error(c *gin.Context, err error) {
	status := apperrors.StatusOf(err)
	msg := "internal server error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrInternal {
		msg = appErr.Message
	}
	_ = c.Error(err)
	c.JSON(status, NewErrorResponse(msg))
}
