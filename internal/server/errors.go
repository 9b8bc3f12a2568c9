package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
	"github.com/tallyops/meridian/internal/billingperiod"
	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	prorationdomain "github.com/tallyops/meridian/internal/proration/domain"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

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

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isResolutionError(err):
		// Well-formed request the engine refuses to bill; the payload
		// carries the taxonomy code for the operator queue.
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "resolution_error",
			Message: allocationdomain.FailureReason(err),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, billingperiod.ErrInvalidGranularity),
		errors.Is(err, catalogdomain.ErrInvalidCode),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidRate),
		errors.Is(err, catalogdomain.ErrInvalidCurrency),
		errors.Is(err, contractlinedomain.ErrInvalidClient),
		errors.Is(err, contractlinedomain.ErrInvalidService),
		errors.Is(err, contractlinedomain.ErrInvalidBillingType),
		errors.Is(err, contractlinedomain.ErrInvalidDateRange),
		errors.Is(err, contractlinedomain.ErrInvalidRate),
		errors.Is(err, contractlinedomain.ErrInvalidQuantity),
		errors.Is(err, bucketdomain.ErrInvalidQuantity),
		errors.Is(err, bucketdomain.ErrInvalidPeriod),
		errors.Is(err, prorationdomain.ErrInvalidPeriod),
		errors.Is(err, prorationdomain.ErrInvalidClient),
		errors.Is(err, allocationdomain.ErrInvalidUnit),
		errors.Is(err, allocationdomain.ErrInvalidClient),
		errors.Is(err, allocationdomain.ErrInvalidService),
		errors.Is(err, allocationdomain.ErrInvalidQuantity),
		errors.Is(err, allocationdomain.ErrBatchTooLarge):
		return true
	default:
		return isBindingError(err)
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, contractlinedomain.ErrLineNotFound),
		errors.Is(err, allocationdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrCodeExists),
		errors.Is(err, contractlinedomain.ErrServiceAssigned),
		errors.Is(err, contractlinedomain.ErrBucketExists),
		errors.Is(err, contractlinedomain.ErrLineEnded),
		errors.Is(err, bucketdomain.ErrCapacityRace):
		return true
	default:
		return false
	}
}

func isResolutionError(err error) bool {
	switch {
	case errors.Is(err, resolverdomain.ErrNoEligibleLine),
		errors.Is(err, resolverdomain.ErrStaleAssignment),
		errors.Is(err, ratedomain.ErrMissingPrice):
		return true
	default:
		return false
	}
}

// isBindingError covers gin's JSON binding failures, which arrive as plain
// decode errors rather than domain sentinels.
func isBindingError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "cannot unmarshal") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "invalid character") ||
		strings.Contains(msg, "EOF")
}
