package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abarbosa/pontosledger/internal/auth"
)

// NewRouter wires every route. Everything under /api/v1 is measured; the
// points and account routes additionally require a valid token.
func NewRouter(h *Handler, tokens *auth.TokenManager) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(Metrics)
	apiV1.HandleFunc("/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/auth/login", h.LoginHandler).Methods(http.MethodPost)

	authed := apiV1.NewRoute().Subrouter()
	authed.Use(Authenticate(tokens))
	authed.HandleFunc("/me", h.MeHandler).Methods(http.MethodGet)
	authed.HandleFunc("/me/profile", h.UpdateProfileHandler).Methods(http.MethodPut)
	authed.HandleFunc("/users", h.ListUsersHandler).Methods(http.MethodGet)
	authed.HandleFunc("/users/{id}", h.AdminUpdateUserHandler).Methods(http.MethodPut)
	authed.HandleFunc("/points/transfer", h.TransferHandler).Methods(http.MethodPost)
	authed.HandleFunc("/points/grant", h.GrantHandler).Methods(http.MethodPost)
	authed.HandleFunc("/points/history", h.HistoryHandler).Methods(http.MethodGet)

	return r
}
