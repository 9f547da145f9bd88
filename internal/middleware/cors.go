package middleware

import (
	"net/http"

	"erp-backend/internal/config"

	"github.com/rs/cors"
)

// NewCORS builds the cross-origin policy for the dashboard. Downloads expose
// Content-Disposition so the browser keeps the server's file name.
func NewCORS(cfg *config.Config) func(http.Handler) http.Handler {
	wildcard := false
	for _, o := range cfg.Server.CorsAllowedOrigins {
		if o == "*" {
			wildcard = true
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsAllowedOrigins,
		AllowedMethods:   cfg.Server.CorsAllowedMethods,
		AllowedHeaders:   cfg.Server.CorsAllowedHeaders,
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
	return c.Handler
}
