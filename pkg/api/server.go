// Package api exposes a small HTTP administration surface over a
// pkg/index.IndexManager: insert/delete/search/range per named field,
// plus health and Prometheus metrics endpoints.
package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssargent/freyjadb/pkg/index"
)

// StartServer starts the HTTP server with all routes configured.
func StartServer(indexes *index.IndexManager, config ServerConfig) error {
	metrics := NewMetrics()
	server := NewServer(indexes, config, metrics)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.Handler())

	// API key authentication middleware for protected routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		r.Put("/fields/{field}/{primaryKey}", metrics.InstrumentHandler("PUT", "/api/v1/fields/{field}/{primaryKey}", server.handleInsert))
		r.Delete("/fields/{field}/{primaryKey}", metrics.InstrumentHandler("DELETE", "/api/v1/fields/{field}/{primaryKey}", server.handleDelete))
		r.Get("/fields/{field}/search", metrics.InstrumentHandler("GET", "/api/v1/fields/{field}/search", server.handleSearch))
		r.Get("/fields/{field}/range", metrics.InstrumentHandler("GET", "/api/v1/fields/{field}/range", server.handleRange))
	})

	addr := fmt.Sprintf(":%d", config.Port)
	fmt.Printf("Starting FreyjaDB index admin API on %s\n", addr)
	fmt.Printf("Metrics available at: http://localhost:%d/metrics\n", config.Port)
	log.Fatal(http.ListenAndServe(addr, r))

	return nil
}
