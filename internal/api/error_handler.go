package api

import (
	"errors"
	"net/http"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
// 处理通过 c.Error 记录且尚未写出响应的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		HandleServiceError(c, err, nil)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusForError 返回服务错误对应的 HTTP 状态码
func StatusForError(err error) int {
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest
	case service.IsInvalidPayload(err):
		return http.StatusUnprocessableEntity
	case service.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 将服务层错误写为错误响应
func HandleServiceError(c *gin.Context, err error, data interface{}) {
	status := StatusForError(err)

	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		ErrorWithData(c, status, T(c, MsgValidationFailed), err.Error(), gin.H{"field": validationErr.Field})
	case service.IsInvalidPayload(err):
		ErrorWithData(c, status, T(c, MsgInvalidPayload), err.Error(), data)
	case errors.As(err, &notFoundErr):
		ErrorWithData(c, status, T(c, MsgCardNotFound), err.Error(), data)
	case service.IsPersistence(err):
		ErrorWithData(c, status, T(c, MsgStorageFailed), err.Error(), data)
	default:
		ErrorWithData(c, status, T(c, MsgInternalError), err.Error(), data)
	}
}
