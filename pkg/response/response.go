package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the unified API envelope. Code 0 means success; non-zero codes
// carry the application error code.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError is a structured application error carrying the HTTP status to
// answer with and an application-level error code.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(status, code int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: code, Message: msg}
}

func NewBadRequest(msg string) *AppError   { return newError(http.StatusBadRequest, 400, msg) }
func NewUnauthorized(msg string) *AppError { return newError(http.StatusUnauthorized, 401, msg) }
func NewForbidden(msg string) *AppError    { return newError(http.StatusForbidden, 403, msg) }
func NewNotFound(msg string) *AppError     { return newError(http.StatusNotFound, 404, msg) }
func NewConflict(msg string) *AppError     { return newError(http.StatusConflict, 409, msg) }
func NewServerError(msg string) *AppError  { return newError(http.StatusInternalServerError, 500, msg) }

// NewBadGateway reports a failed upstream collaborator (the generative
// service). Code 50201 distinguishes it from plain 502s at the proxy.
func NewBadGateway(msg string) *AppError { return newError(http.StatusBadGateway, 50201, msg) }

// NewUnavailable reports a failed persistence write that will be retried.
func NewUnavailable(msg string) *AppError { return newError(http.StatusServiceUnavailable, 50301, msg) }

// write emits a success envelope with the given transport status.
func write(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Code: 0, Message: message, Data: data})
}

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) { write(c, http.StatusOK, "ok", data) }

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) { write(c, http.StatusCreated, "created", data) }

// Accepted sends a 202 Accepted response, used by async generation.
func Accepted(c *gin.Context, data interface{}) { write(c, http.StatusAccepted, "accepted", data) }

// Error sends an error response. *AppError values keep their status and code;
// anything else becomes a generic 500.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewServerError(err.Error())
	}
	c.JSON(appErr.HTTPStatus, Response{Code: appErr.Code, Message: appErr.Message})
}

func BadRequest(c *gin.Context, msg string)   { Error(c, NewBadRequest(msg)) }
func Unauthorized(c *gin.Context, msg string) { Error(c, NewUnauthorized(msg)) }
func Forbidden(c *gin.Context, msg string)    { Error(c, NewForbidden(msg)) }
func NotFound(c *gin.Context, msg string)     { Error(c, NewNotFound(msg)) }
func ServerError(c *gin.Context, msg string)  { Error(c, NewServerError(msg)) }
