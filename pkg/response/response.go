package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

// Response is the envelope every API handler answers with.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError carries the HTTP status and envelope code for a failed request.
// Err keeps the underlying cause for logs; it is never sent to clients.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithData attaches a payload that is returned alongside the error message.
func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

func newError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError      { return newError(http.StatusBadRequest, msg) }
func NewUnauthorized(msg string) *AppError    { return newError(http.StatusUnauthorized, msg) }
func NewForbidden(msg string) *AppError       { return newError(http.StatusForbidden, msg) }
func NewNotFound(msg string) *AppError        { return newError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError        { return newError(http.StatusConflict, msg) }
func NewTooLarge(msg string) *AppError        { return newError(http.StatusRequestEntityTooLarge, msg) }
func NewTooManyRequests(msg string) *AppError { return newError(http.StatusTooManyRequests, msg) }
func NewServerError(msg string) *AppError     { return newError(http.StatusInternalServerError, msg) }

// Wrap turns err into a server error with a client-safe message.
func Wrap(err error, msg string) *AppError {
	e := NewServerError(msg)
	e.Err = err
	return e
}

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "ok", Data: data})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// Error answers with err. An *AppError anywhere in the chain decides status
// and message; anything else becomes a 500 whose details only go to the log.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		}
		c.JSON(appErr.HTTPStatus, Response{Code: appErr.Code, Message: appErr.Message, Data: appErr.Data})
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: "internal server error"})
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: 401, Message: msg})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: 403, Message: msg})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: 404, Message: msg})
}

func ServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: msg})
}
