// Package firebase initializes the Firebase app shared by the Firestore
// document store and ID token verification.
package firebase

import (
	"context"
	"fmt"

	"family-organizer/internal/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// NewApp builds the app from the project id and an optional service account
// file. Without a file, application default credentials are used.
func NewApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// TokenVerifier checks Firebase ID tokens and returns the Firebase uid.
type TokenVerifier struct {
	client *auth.Client
}

func NewTokenVerifier(ctx context.Context, app *firebase.App) (*TokenVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &TokenVerifier{client: client}, nil
}

func (v *TokenVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("invalid firebase id token: %w", err)
	}
	return token.UID, nil
}
