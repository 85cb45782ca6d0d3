package server

import "github.com/gin-gonic/gin"

const (
	ErrCodeBadRequest         string = "ERR_BAD_REQUEST"
	ErrCodeNotFound           string = "ERR_NOT_FOUND"
	ErrCodeLibraryUnavailable string = "ERR_LIBRARY_UNAVAILABLE"
	ErrCodeUnknownError       string = "ERR_UNKNOWN_ERROR"
)

type APIError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, APIError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
