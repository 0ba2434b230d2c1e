package handlers

import (
	"log"
	"net/http"

	"family-organizer/internal/app"
	"family-organizer/internal/auth"
	"family-organizer/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	app       *app.App
	validator *validator.Validate
}

func NewAuthHandler(a *app.App) *AuthHandler {
	return &AuthHandler{
		app:       a,
		validator: validator.New(),
	}
}

// SignInAnonymously issues a session for a brand new opaque user id.
func (h *AuthHandler) SignInAnonymously(c *gin.Context) {
	userID := auth.NewAnonymousUserID()
	token, err := h.app.JWT.GenerateToken(userID, auth.ProviderAnonymous)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	log.Printf("Anonymous sign-in for user %s", userID)
	c.JSON(http.StatusCreated, models.AuthResponse{Token: token, UserID: userID})
}

// ExchangeToken turns a verified Firebase ID token into a session whose user
// id is the Firebase uid.
func (h *AuthHandler) ExchangeToken(c *gin.Context) {
	if h.app.Verifier == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Token exchange is not configured"})
		return
	}

	var req models.TokenExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := h.app.Verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.app.JWT.GenerateToken(userID, auth.ProviderFirebase)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Token: token, UserID: userID})
}
