package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"training-portal/internal/domain"
)

// writeError maps a use-case error onto a status and error code.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	var conflict *domain.SessionConflictError
	switch {
	case errors.As(err, &conflict):
		secs := int(math.Ceil(conflict.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		fail(c, http.StatusConflict, ErrSessionActive, map[string]string{
			"retry_after_seconds": strconv.Itoa(secs),
		})
	case errors.Is(err, domain.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrInvalidCredentials, nil)
	case errors.Is(err, domain.ErrSessionInvalidated):
		fail(c, http.StatusUnauthorized, ErrSessionInvalidated, nil)
	case errors.Is(err, domain.ErrConfiguration):
		fail(c, http.StatusServiceUnavailable, ErrConfiguration, nil)
	case errors.Is(err, domain.ErrSourceFetch):
		log.Warn().Err(err).Msg("row source unavailable")
		fail(c, http.StatusBadGateway, ErrSourceUnavailable, nil)
	case errors.Is(err, domain.ErrEmptyQuestionSet):
		fail(c, http.StatusUnprocessableEntity, ErrNoQuestions, nil)
	case errors.Is(err, domain.ErrLearnerRequired),
		errors.Is(err, domain.ErrInvalidLearnerKey):
		fail(c, http.StatusBadRequest, ErrValidation, map[string]string{"name": err.Error()})
	case errors.Is(err, domain.ErrInvalidMode):
		fail(c, http.StatusBadRequest, ErrValidation, map[string]string{"mode": err.Error()})
	case errors.Is(err, domain.ErrInvalidQuestionCount):
		fail(c, http.StatusBadRequest, ErrValidation, map[string]string{"count": err.Error()})
	case errors.Is(err, domain.ErrUnknownOption):
		fail(c, http.StatusBadRequest, ErrValidation, map[string]string{"label": err.Error()})
	case errors.Is(err, domain.ErrEmptySelection):
		fail(c, http.StatusBadRequest, ErrValidation, map[string]string{"selection": err.Error()})
	case errors.Is(err, domain.ErrRunNotFound):
		fail(c, http.StatusNotFound, ErrNotFound, nil)
	case errors.Is(err, domain.ErrRunSuperseded),
		errors.Is(err, domain.ErrRunFinished),
		errors.Is(err, domain.ErrAlreadyRevealed),
		errors.Is(err, domain.ErrNotAnswered),
		errors.Is(err, domain.ErrNotMultiSelect):
		fail(c, http.StatusConflict, ErrQuizState, map[string]string{"detail": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, ErrInternal, nil)
	}
}
