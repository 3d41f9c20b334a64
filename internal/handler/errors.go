package handler

import (
	"errors"
	"net/http"

	"opsboard/internal/approval"
	"opsboard/internal/service"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var stale *approval.StaleError
	if errors.As(err, &stale) {
		// the caller gets the record as it is now so it can decide again
		c.JSON(http.StatusConflict, response.Response{
			Status:     "error",
			StatusCode: http.StatusConflict,
			Error:      err.Error(),
			Data:       service.NewApprovalResponse(stale.Current),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, approval.ErrValidation), errors.Is(err, service.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, approval.ErrForbidden), errors.Is(err, service.ErrUnknownRole):
		status = http.StatusForbidden
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, service.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrInvalidTransition), errors.Is(err, service.ErrOrderConflict):
		status = http.StatusConflict
	case errors.Is(err, approval.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response.Error(status, err.Error()))
}
