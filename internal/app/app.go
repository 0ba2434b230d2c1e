// Package app holds the process-wide state: configuration, the document
// store and the services built on it. It is created once at startup and
// passed explicitly to the transport layer.
package app

import (
	"context"
	"fmt"
	"log"

	"family-organizer/internal/auth"
	"family-organizer/internal/config"
	"family-organizer/internal/database"
	"family-organizer/internal/directory"
	"family-organizer/internal/docstore"
	"family-organizer/internal/docstore/firestore"
	"family-organizer/internal/docstore/memory"
	"family-organizer/internal/docstore/postgres"
	"family-organizer/internal/firebase"
	"family-organizer/internal/items"
	"family-organizer/internal/membership"
	"family-organizer/internal/metrics"

	fb "firebase.google.com/go/v4"
)

// IDTokenVerifier exchanges an external identity token for a user id.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

type App struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Store     docstore.Store
	Paths     docstore.Paths
	JWT       *auth.JWTManager
	Verifier  IDTokenVerifier
	Directory *directory.Directory
	Members   *membership.Resolver
	Items     *items.Store

	db *database.DB
}

// New initializes, in order: metrics, the store backend, identity and the
// domain services. On error everything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Paths:   docstore.NewPaths(cfg.DeploymentID),
		JWT:     auth.NewJWTManager(cfg.JWT),
	}

	var fbApp *fb.App
	if cfg.Store.Backend == "firestore" || cfg.Firebase.VerifyIDTokens {
		var err error
		fbApp, err = firebase.NewApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
	}

	store, err := a.openStore(ctx, fbApp)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	if cfg.Firebase.VerifyIDTokens {
		v, err := firebase.NewTokenVerifier(ctx, fbApp)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Verifier = v
	}

	if err := a.initServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore builds an App around an existing store. Used by tests.
func NewWithStore(cfg *config.Config, store docstore.Store) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Paths:   docstore.NewPaths(cfg.DeploymentID),
		JWT:     auth.NewJWTManager(cfg.JWT),
		Store:   store,
	}
	if err := a.initServices(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initServices() error {
	mode, err := membership.ParseAppendMode(a.Config.Sync.MemberAppend)
	if err != nil {
		return err
	}
	a.Directory = directory.New(a.Store, a.Paths)
	a.Members = membership.NewResolver(a.Store, a.Paths, a.Directory, membership.Options{
		Mode:       mode,
		MaxRetries: a.Config.Sync.JoinMaxRetries,
		Metrics:    a.Metrics,
	})
	a.Items = items.NewStore(a.Store, a.Paths, a.Metrics)
	log.Printf("Services ready (deployment=%s, member append=%s)", a.Config.DeploymentID, mode)
	return nil
}

func (a *App) openStore(ctx context.Context, fbApp *fb.App) (docstore.Store, error) {
	switch a.Config.Store.Backend {
	case "", "memory":
		log.Println("Using in-memory document store")
		return memory.New(), nil
	case "postgres":
		db, err := database.Connect(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := database.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Println("Using PostgreSQL document store")
		return postgres.New(ctx, db)
	case "firestore":
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
		}
		log.Println("Using Firestore document store")
		return firestore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
}

// Close releases the store and, for postgres, the pool, in reverse init order.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("Failed to close document store: %v", err)
		}
		a.Store = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}
