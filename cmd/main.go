// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/fuegovibe/backend/internal/auth"
	"github.com/fuegovibe/backend/internal/config"
	"github.com/fuegovibe/backend/internal/database"
	"github.com/fuegovibe/backend/internal/handler"
	"github.com/fuegovibe/backend/internal/quote"
	"github.com/fuegovibe/backend/internal/service"
	"github.com/fuegovibe/backend/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx := context.Background()
	cfg := config.FromEnv()

	// ── 1. Connect the document store ─────────────────────────────────────
	var st store.Store
	switch cfg.StoreKind {
	case "memory":
		st = store.NewMemory()
		log.Info("using in-memory store")
	default:
		db, cleanup, err := database.Connect(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			log.Error("database", "error", err)
			os.Exit(1)
		}
		defer cleanup()
		st = store.NewMongo(db)
		log.Info("connected to mongodb", "db", cfg.DBName)
	}

	// ── 2. Wire up layers ─────────────────────────────────────────────────
	eventSync := service.NewEventSync(st, log)
	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.AdminEmails, log)
	quotes := quote.NewClient(cfg.QuoteAPIURL, log)
	h := handler.New(eventSync, authSvc, quotes, log)

	// Keep the public projection warm; teardown cancels every listener.
	if err := eventSync.StartListening(ctx); err != nil {
		log.Warn("public events listener unavailable", "error", err)
	}
	defer eventSync.Close()

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/health", handler.HealthCheck)
	r.Get("/quote", h.QuoteOfTheDay)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/signin", h.SignIn)
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/search", h.SearchEvents)
		r.Get("/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Post("/", h.CreateEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
			r.Post("/{id}/join", h.JoinEvent)
			r.Post("/{id}/leave", h.LeaveEvent)
		})
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/", h.Me)
		r.Get("/events", h.MyEvents)
		r.Get("/joined", h.JoinedEvents)
	})

	r.Get("/ws/events", h.StreamEvents)

	corsLayer := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      corsLayer.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
