package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dignitybank/dignity-be/internal/api/handlers"
	"github.com/dignitybank/dignity-be/internal/auth"
	"github.com/dignitybank/dignity-be/internal/services"
	"github.com/dignitybank/dignity-be/internal/ws"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(db *sql.DB, tokens *auth.Manager, hub *ws.Hub, accountService services.AccountServiceProvider, eventService services.EventServiceProvider) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration for development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // Adjust for your frontend URL
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(accountService, tokens)
	accountHandler := handlers.NewAccountHandler(accountService)
	eventHandler := handlers.NewEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub)
	healthHandler := handlers.NewHealthHandler(db)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Dignity Active"}`))
	})
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// Live activity feed and health endpoints
		r.Get("/ws", wsHandler.Serve)
		r.Get("/health", healthHandler.Get)

		// Endpoints that need an authenticated identity
		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware())
			r.Get("/me", userHandler.GetMe)
			r.Get("/users", userHandler.List)
			r.Post("/deposit", accountHandler.Deposit)
			r.Post("/withdraw", accountHandler.Withdraw)
			r.Post("/transfer", accountHandler.Transfer)
			r.Get("/transactions", accountHandler.Transactions)
			r.Get("/events", eventHandler.GetRecent)
		})
	})

	return r
}
