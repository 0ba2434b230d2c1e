package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	Port         string
	DeploymentID string
	Store        StoreConfig
	Database     DatabaseConfig
	Firebase     FirebaseConfig
	JWT          JWTConfig
	Sync         SyncConfig
	CORS         CORSConfig
}

type StoreConfig struct {
	// Backend is one of memory, postgres or firestore.
	Backend string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// URL renders the connection string understood by pgx.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// VerifyIDTokens enables exchanging Firebase ID tokens for session tokens.
	VerifyIDTokens bool
}

type JWTConfig struct {
	Secret    string
	ExpiresIn string
}

type SyncConfig struct {
	MemberAppend   string
	JoinMaxRetries int
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Environment:  getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "3001"),
		DeploymentID: getEnv("DEPLOYMENT_ID", "familia-original-v1"),
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "memory"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "family_organizer"),
			User:     getEnv("DB_USER", "family_user"),
			Password: getEnv("DB_PASSWORD", "family_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			VerifyIDTokens:  getEnvBool("FIREBASE_VERIFY_ID_TOKENS", false),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
			ExpiresIn: getEnv("JWT_EXPIRES_IN", "30d"),
		},
		Sync: SyncConfig{
			MemberAppend:   getEnv("SYNC_MEMBER_APPEND", "atomic"),
			JoinMaxRetries: getEnvInt("SYNC_JOIN_MAX_RETRIES", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				getEnv("FRONTEND_URL", "http://localhost:3000"),
				"http://localhost:3000",
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Invalid boolean for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
