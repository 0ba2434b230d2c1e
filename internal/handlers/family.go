package handlers

import (
	"errors"
	"net/http"

	"family-organizer/internal/app"
	"family-organizer/internal/auth"
	"family-organizer/internal/membership"
	"family-organizer/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FamilyHandler struct {
	app       *app.App
	validator *validator.Validate
}

func NewFamilyHandler(a *app.App) *FamilyHandler {
	return &FamilyHandler{
		app:       a,
		validator: validator.New(),
	}
}

func (h *FamilyHandler) GetFamily(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	profile, err := h.app.Members.Profile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}
	if !profile.HasFamily() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no family"})
		return
	}

	family, err := h.app.Directory.GetFamily(c.Request.Context(), *profile.FamilyID)
	if errors.Is(err, membership.ErrFamilyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no family"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load family"})
		return
	}

	c.JSON(http.StatusOK, models.FamilyResponse{Profile: profile, Family: family})
}

func (h *FamilyHandler) CreateFamily(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	family, err := h.app.Members.CreateFamily(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, err, "Failed to create family")
		return
	}

	c.JSON(http.StatusCreated, family)
}

func (h *FamilyHandler) JoinFamily(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.JoinFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	family, err := h.app.Members.JoinFamily(c.Request.Context(), userID, req.Code)
	if err != nil {
		respondError(c, err, "Failed to join family")
		return
	}

	c.JSON(http.StatusOK, family)
}

func (h *FamilyHandler) LeaveFamily(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.app.Members.LeaveFamily(c.Request.Context(), userID); err != nil {
		respondError(c, err, "Failed to leave family")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left family"})
}
