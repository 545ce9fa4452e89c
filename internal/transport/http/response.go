package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrConfiguration      ErrCode = "CONFIGURATION_ERROR"
	ErrSourceUnavailable  ErrCode = "SOURCE_UNAVAILABLE"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrValidation         ErrCode = "VALIDATION_ERROR"
	ErrQuizState          ErrCode = "QUIZ_STATE_CONFLICT"
	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// Message returns the user-facing text for code.
func Message(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Incorrect account id or password."
	case ErrSessionActive:
		return "This account is already in use on another device. Try again once that session has been idle for a few minutes."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrConfiguration:
		return "The portal is not configured. Contact your administrator."
	case ErrSourceUnavailable:
		return "Could not load data from the question or account sheet. Please try again."
	case ErrNoQuestions:
		return "No questions found."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrQuizState:
		return "That action is not possible at this point of the quiz."
	case ErrNotFound:
		return "Resource not found."
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}

// Response is the envelope of every JSON API response.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Data: data, Metadata: buildMetadata(c)})
}

func fail(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	c.AbortWithStatusJSON(status, Response{
		Error:    &ErrorBody{Code: code, Message: Message(code), Fields: fields},
		Metadata: buildMetadata(c),
	})
}

const contextKeyRequestID = "request_id"

// requestID tags every request with X-Request-ID, reusing the caller's value when sent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(contextKeyRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return Metadata{RequestID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
