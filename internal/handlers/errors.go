package handlers

import (
	"errors"
	"log"
	"net/http"

	"family-organizer/internal/items"
	"family-organizer/internal/membership"

	"github.com/gin-gonic/gin"
)

// respondError maps domain errors to a status. Anything unrecognised is
// logged and reported with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, membership.ErrFamilyNotFound), errors.Is(err, items.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrInvalidName),
		errors.Is(err, items.ErrInvalidTitle),
		errors.Is(err, items.ErrInvalidType),
		errors.Is(err, items.ErrUnknownTab):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrMembershipConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, items.ErrBatchFailed):
		log.Printf("%s: %v", fallback, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch failed, nothing was removed; try again"})
	default:
		log.Printf("%s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
