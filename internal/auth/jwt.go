package auth

import (
	"fmt"
	"strconv"
	"time"

	"family-organizer/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identifies a session. Provider is "anonymous" or "firebase".
type Claims struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

const (
	ProviderAnonymous = "anonymous"
	ProviderFirebase  = "firebase"
)

type JWTManager struct {
	secret    []byte
	expiresIn time.Duration
}

func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	return &JWTManager{
		secret:    []byte(cfg.Secret),
		expiresIn: ParseExpiry(cfg.ExpiresIn, 30*24*time.Hour),
	}
}

// ParseExpiry accepts Go durations plus a day suffix, e.g. "30d".
func ParseExpiry(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if len(s) < 2 || s[len(s)-1] != 'd' {
		return fallback
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

// NewAnonymousUserID mints the uid for an anonymous sign-in.
func NewAnonymousUserID() string {
	return uuid.NewString()
}

func (j *JWTManager) GenerateToken(userID, provider string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
