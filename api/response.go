package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/service/payment"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func success(c *gin.Context, status int, message string, body gin.H) {
	out := gin.H{"success": true}
	if message != "" {
		out["message"] = message
	}
	for k, v := range body {
		out[k] = v
	}
	c.JSON(status, out)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// writeError maps service errors onto HTTP statuses. Unknown errors are logged
// and reported without their details.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"message":        fmt.Sprintf("Only %d seats available", capErr.Remaining),
			"availableSeats": capErr.Remaining,
		})
		return
	}
	var verErr *payment.VerificationError
	if errors.As(err, &verErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":       false,
			"message":       "Payment not completed",
			"paymentStatus": verErr.ProviderStatus,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyCancelled):
		fail(c, http.StatusBadRequest, "Booking is already cancelled")
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPaymentVerification):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		log.Error("dependency unavailable", slog.String("path", c.FullPath()), sl.Err(err))
		fail(c, http.StatusInternalServerError, "Service temporarily unavailable, please retry")
	default:
		log.Error("request failed", slog.String("path", c.FullPath()), sl.Err(err))
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", domain.ErrValidation, raw)
	}
	return t, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", domain.ErrValidation)
	}
	return nil
}
