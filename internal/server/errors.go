package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	approvaldomain "github.com/smallbiznis/fieldops/internal/approval/domain"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/auth"
	"github.com/smallbiznis/fieldops/internal/authorization"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
	"gorm.io/gorm"
)

const (
	kindValidation   = "validation"
	kindNotFound     = "not_found"
	kindConflict     = "conflict"
	kindInvalidState = "invalid_state"
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindRateLimited  = "rate_limited"
	kindUnavailable  = "service_unavailable"
	kindInternal     = "internal_error"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// ValidationError reports a request field that could not be parsed.
type ValidationError struct {
	Field  string
	Reason string
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return v.Reason
	}
	return v.Field + ": " + v.Reason
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrAgentProfileAbsent = errors.New("agent_profile_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, kind, details := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{
			Success: false,
			Error:   kind,
			Details: details,
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return &ValidationError{Field: "request", Reason: "invalid request body"}
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func mapError(err error) (int, string, string) {
	if err == nil {
		return http.StatusInternalServerError, kindInternal, "internal server error"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, kindValidation, vErr.Error()
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, kindValidation, err.Error()
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, kindUnauthorized, err.Error()
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAgentProfileAbsent),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, kindForbidden, err.Error()
	case isNotFoundError(err):
		return http.StatusNotFound, kindNotFound, err.Error()
	case isConflictError(err):
		return http.StatusConflict, kindConflict, err.Error()
	case isInvalidStateError(err):
		return http.StatusConflict, kindInvalidState, err.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, kindRateLimited, err.Error()
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, kindUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, kindInternal, "internal server error"
	}
}

// classifyErrorForLog feeds the request logger with the error kind and the
// domain code without leaking store messages.
func classifyErrorForLog(err error) (string, string) {
	_, kind, details := mapError(err)
	if kind == kindInternal {
		return kind, "internal_error"
	}
	return kind, details
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, meterdomain.ErrInvalidID),
		errors.Is(err, meterdomain.ErrInvalidSerialNumber),
		errors.Is(err, meterdomain.ErrInvalidMeterType),
		errors.Is(err, meterdomain.ErrInvalidPriority),
		errors.Is(err, meterdomain.ErrInvalidStatus),
		errors.Is(err, meterdomain.ErrInvalidEstimatedTime),
		errors.Is(err, meterdomain.ErrInvalidCoordinates),
		errors.Is(err, agentdomain.ErrInvalidID),
		errors.Is(err, agentdomain.ErrInvalidUserID),
		errors.Is(err, agentdomain.ErrInvalidStatus),
		errors.Is(err, agentdomain.ErrInvalidMaxLoad),
		errors.Is(err, agentdomain.ErrInvalidCoordinates),
		errors.Is(err, assignmentdomain.ErrInvalidID),
		errors.Is(err, assignmentdomain.ErrInvalidMeterID),
		errors.Is(err, assignmentdomain.ErrInvalidAgentID),
		errors.Is(err, assignmentdomain.ErrInvalidStatus),
		errors.Is(err, assignmentdomain.ErrInvalidEstimatedTime),
		errors.Is(err, assignmentdomain.ErrEmptyMeterIDs),
		errors.Is(err, approvaldomain.ErrInvalidID),
		errors.Is(err, approvaldomain.ErrInvalidMeterID),
		errors.Is(err, approvaldomain.ErrInvalidAgentID),
		errors.Is(err, approvaldomain.ErrInvalidReviewer),
		errors.Is(err, approvaldomain.ErrInvalidStatus),
		errors.Is(err, approvaldomain.ErrInvalidOutcome),
		errors.Is(err, approvaldomain.ErrEmptyMeterData),
		errors.Is(err, approvaldomain.ErrReviewNotesRequired),
		errors.Is(err, readingdomain.ErrInvalidID),
		errors.Is(err, readingdomain.ErrInvalidMeterID),
		errors.Is(err, readingdomain.ErrInvalidAgentID),
		errors.Is(err, readingdomain.ErrInvalidAssignmentID),
		errors.Is(err, readingdomain.ErrInvalidValue),
		errors.Is(err, readingdomain.ErrInvalidCoordinates),
		errors.Is(err, readingdomain.ErrInvalidVerifier),
		errors.Is(err, readingdomain.ErrAssignmentMismatch),
		errors.Is(err, readingdomain.ErrEmptyUpdate),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrInvalidUser),
		errors.Is(err, authorization.ErrInvalidActor):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, meterdomain.ErrNotFound),
		errors.Is(err, agentdomain.ErrNotFound),
		errors.Is(err, assignmentdomain.ErrNotFound),
		errors.Is(err, assignmentdomain.ErrMeterNotFound),
		errors.Is(err, assignmentdomain.ErrAgentNotFound),
		errors.Is(err, approvaldomain.ErrNotFound),
		errors.Is(err, approvaldomain.ErrMeterNotFound),
		errors.Is(err, approvaldomain.ErrAgentNotFound),
		errors.Is(err, readingdomain.ErrNotFound),
		errors.Is(err, readingdomain.ErrMeterNotFound),
		errors.Is(err, readingdomain.ErrAgentNotFound),
		errors.Is(err, readingdomain.ErrAssignmentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, meterdomain.ErrSerialNumberTaken),
		errors.Is(err, agentdomain.ErrProfileExists),
		errors.Is(err, assignmentdomain.ErrActiveAssignment),
		errors.Is(err, assignmentdomain.ErrBulkAssignInProgress):
		return true
	default:
		return false
	}
}

func isInvalidStateError(err error) bool {
	switch {
	case errors.Is(err, meterdomain.ErrHasActiveAssignment),
		errors.Is(err, meterdomain.ErrHasHistory),
		errors.Is(err, assignmentdomain.ErrInvalidTransition),
		errors.Is(err, assignmentdomain.ErrNoEligibleAgents),
		errors.Is(err, assignmentdomain.ErrAgentAtCapacity),
		errors.Is(err, approvaldomain.ErrNotPending),
		errors.Is(err, readingdomain.ErrAlreadyVerified):
		return true
	default:
		return false
	}
}
