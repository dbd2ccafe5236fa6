package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/fishset/fishdedup/api"
	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/services"
)

func Start(cfg *config.AppConfig) error {
	storage, err := services.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer storage.Close()
	log.Infof("SQLite storage at %s", cfg.Storage.DBPath)

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	log.Infof("Starting server on %s (data dir %s)", addr, cfg.App.DataDir)
	if err := http.ListenAndServe(addr, NewRouter(cfg, storage)); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// NewRouter wires the API handlers onto a chi router.
func NewRouter(cfg *config.AppConfig, storage *services.Storage) http.Handler {
	settingsSvc := services.NewSettingsService(storage.DB(), cfg)

	runsHandler := api.NewRunsHandler(cfg, storage, settingsSvc)
	settingsHandler := api.NewSettingsHandler(settingsSvc)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			api.HealthCheck(w, r, storage)
		})

		// Dedup runs
		r.Post("/runs", runsHandler.Start)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)
		r.Get("/runs/{id}/events", runsHandler.Events)

		// Settings
		r.Get("/settings", settingsHandler.Get)
		r.Put("/settings", settingsHandler.Update)

		// Image preview with path traversal protection
		r.Get("/images/*", serveImages(cfg))
	})

	return r
}

func serveImages(cfg *config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imagePath := chi.URLParam(r, "*")
		if imagePath == "" {
			http.Error(w, "image path required", http.StatusBadRequest)
			return
		}

		absPath, err := services.ResolveUnder(cfg.App.DataDir, imagePath)
		if err != nil {
			http.Error(w, "invalid image path", http.StatusBadRequest)
			return
		}

		http.ServeFile(w, r, absPath)
	}
}
