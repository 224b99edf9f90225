package api

import (
	"net/http"
	"time"

	"authgate/internal/api/handler"
	"authgate/internal/api/validation"
	"authgate/internal/app/service"
	"authgate/internal/common/security"
	"authgate/internal/platform/config"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(authService *service.AuthService, rules validation.Table) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AppConfig.CORSOrigins,
		AllowedMethods:   []string{"GET", "PUT", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// Verifies the access token (bearer header or the accessToken cookie) and
	// puts claims in context; the Authenticator middleware on secured routes
	// enforces it.
	r.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromHeader, accessTokenFromCookie))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService, rules)
		v1.Route("/auth", authHandler.RegisterRoutes)
	})

	return r
}

func accessTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie("accessToken")
	if err != nil {
		return ""
	}
	return cookie.Value
}
