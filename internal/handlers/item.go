package handlers

import (
	"errors"
	"net/http"

	"family-organizer/internal/app"
	"family-organizer/internal/auth"
	"family-organizer/internal/items"
	"family-organizer/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type ItemHandler struct {
	app       *app.App
	validator *validator.Validate
}

func NewItemHandler(a *app.App) *ItemHandler {
	return &ItemHandler{
		app:       a,
		validator: validator.New(),
	}
}

// familyOf resolves the caller's family and writes the error response when
// there is none.
func (h *ItemHandler) familyOf(c *gin.Context) (userID, familyID string, ok bool) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", "", false
	}

	familyID, found, err := h.app.Members.ResolveFamily(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to resolve family")
		return "", "", false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no family"})
		return "", "", false
	}
	return userID, familyID, true
}

func (h *ItemHandler) GetItems(c *gin.Context) {
	_, familyID, ok := h.familyOf(c)
	if !ok {
		return
	}

	list, err := h.app.Items.ListItems(c.Request.Context(), familyID)
	if err != nil {
		respondError(c, err, "Failed to fetch items")
		return
	}
	list, err = items.ForTab(list, items.Tab(c.Query("tab")))
	if err != nil {
		respondError(c, err, "Failed to fetch items")
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *ItemHandler) CreateItem(c *gin.Context) {
	userID, familyID, ok := h.familyOf(c)
	if !ok {
		return
	}

	var req models.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.app.Items.AddItem(c.Request.Context(), familyID, userID, req.Draft())
	if err != nil {
		respondError(c, err, "Failed to create item")
		return
	}

	c.JSON(http.StatusCreated, item)
}

// ToggleItem flips completion relative to the state the client saw.
func (h *ItemHandler) ToggleItem(c *gin.Context) {
	_, familyID, ok := h.familyOf(c)
	if !ok {
		return
	}

	var req models.ToggleItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id := c.Param("id")
	if !h.ownedBy(c, id, familyID) {
		return
	}
	if err := h.app.Items.ToggleCompleted(c.Request.Context(), id, req.Completed); err != nil {
		respondError(c, err, "Failed to update item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "completed": !req.Completed})
}

func (h *ItemHandler) DeleteItem(c *gin.Context) {
	_, familyID, ok := h.familyOf(c)
	if !ok {
		return
	}

	id := c.Param("id")
	item, err := h.app.Items.GetItem(c.Request.Context(), id)
	switch {
	case errors.Is(err, items.ErrItemNotFound):
		// Already gone.
		c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
		return
	case err != nil:
		respondError(c, err, "Failed to delete item")
		return
	case item.FamilyID != familyID:
		c.JSON(http.StatusNotFound, gin.H{"error": items.ErrItemNotFound.Error()})
		return
	}

	if err := h.app.Items.DeleteItem(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
}

func (h *ItemHandler) ClearCompleted(c *gin.Context) {
	_, familyID, ok := h.familyOf(c)
	if !ok {
		return
	}

	removed, err := h.app.Items.ClearCompleted(c.Request.Context(), familyID)
	if err != nil {
		respondError(c, err, "Failed to clear completed items")
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *ItemHandler) ownedBy(c *gin.Context, itemID, familyID string) bool {
	item, err := h.app.Items.GetItem(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err, "Failed to load item")
		return false
	}
	if item.FamilyID != familyID {
		c.JSON(http.StatusNotFound, gin.H{"error": items.ErrItemNotFound.Error()})
		return false
	}
	return true
}
