package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the REST surface and the gateway handshake endpoint.
// Auth endpoints sit behind a stricter rate limit than the rest of the API.
func (h *Handlers) NewRouter() http.Handler {
	apiLimiter := newLimiterPool(h.cfg.APIRateRPS, h.cfg.APIRateBurst)
	authLimiter := newLimiterPool(h.cfg.AuthRateRPS, h.cfg.AuthRateBurst)

	r := mux.NewRouter()

	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Gateway handshake: token is verified inside the handler, before the
	// upgrade, so it bypasses the REST auth middleware.
	r.HandleFunc("/ws", h.HandleWebSocket)

	authRoutes := r.PathPrefix("/api/auth").Subrouter()
	authRoutes.Use(RateLimit(authLimiter))
	authRoutes.HandleFunc("/register", h.HandleRegister).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", h.HandleLogin).Methods(http.MethodPost)
	authRoutes.Handle("/me", h.WithAuth(http.HandlerFunc(h.HandleMe))).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(RateLimit(apiLimiter), h.WithAuth)
	protected.HandleFunc("/users", h.HandleUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users/search", h.HandleSearchUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users/profile", h.HandleUpdateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/conversations", h.HandleConversations).Methods(http.MethodGet)
	protected.HandleFunc("/conversations", h.HandleCreateConversation).Methods(http.MethodPost)
	protected.HandleFunc("/conversations/{id:[0-9]+}", h.HandleConversation).Methods(http.MethodGet)
	protected.HandleFunc("/conversations/{id:[0-9]+}", h.HandleDeleteConversation).Methods(http.MethodDelete)
	protected.HandleFunc("/messages/{conversationId:[0-9]+}", h.HandleMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/{conversationId:[0-9]+}", h.HandleSendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{messageId:[0-9]+}", h.HandleEditMessage).Methods(http.MethodPut)
	protected.HandleFunc("/messages/{messageId:[0-9]+}", h.HandleDeleteMessage).Methods(http.MethodDelete)

	return h.WithCORS(LogRequests(r))
}
