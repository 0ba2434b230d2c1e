package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-organizer/internal/api"
	"family-organizer/internal/app"
	"family-organizer/internal/config"
	"family-organizer/internal/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	hub := websocket.NewHub(websocket.Sources{
		Profiles: a.Members,
		Families: a.Directory,
		Items:    a.Items,
	}, a.Metrics)
	go hub.Run()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(a, hub),
	}

	go func() {
		log.Printf("Server starting on port %s (store=%s)", cfg.Port, cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
