package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"ripple/internal/auth"
	"ripple/internal/chat"
	"ripple/internal/config"
	"ripple/internal/db"
	"ripple/internal/gateway"
	"ripple/internal/logger"
	"ripple/internal/models"
)

type Handlers struct {
	store    *db.DB
	hub      *gateway.Hub
	verifier *auth.Verifier
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewHandlers(store *db.DB, hub *gateway.Hub, verifier *auth.Verifier, cfg *config.Config) *Handlers {
	return &Handlers{
		store:    store,
		hub:      hub,
		verifier: verifier,
		cfg:      cfg,
		upgrader: newUpgrader(cfg.ClientOrigin),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "err", err)
	}
}

// chatError maps the lifecycle taxonomy onto HTTP statuses for the REST
// fallback endpoints.
func chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusForbidden)
	case errors.Is(err, chat.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrInvalidState):
		http.Error(w, "Invalid state", http.StatusConflict)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Auth handlers

func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || len(req.Password) < 6 {
		http.Error(w, "Username and a password of at least 6 characters are required", http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(req.Username, string(hashed), req.Avatar)
	if err != nil {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}

	token, err := h.verifier.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, models.LoginResponse{Token: token, User: *user})
}

func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.verifier.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.JWTTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: *user})
}

func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// User handlers

func (h *Handlers) HandleUsers(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)

	users, err := h.store.ListUsers(user.ID)
	if err != nil {
		http.Error(w, "Failed to get users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) HandleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Search query is required", http.StatusBadRequest)
		return
	}

	users, err := h.store.SearchUsers(query)
	if err != nil {
		http.Error(w, "Failed to search users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)

	var req models.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		req.Username = user.Username
	}

	updated, err := h.store.UpdateProfile(user.ID, req.Username, req.Avatar)
	if err != nil {
		http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Conversation handlers

func (h *Handlers) HandleConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)

	conversations, err := h.store.GetUserConversations(user.ID)
	if err != nil {
		logger.Log.Error("failed to fetch conversations", "user", user.ID, "err", err)
		http.Error(w, "Failed to fetch conversations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(conversations),
		"conversations": conversations,
	})
}

func (h *Handlers) HandleConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	ok, err := h.store.IsParticipant(id, user.ID)
	if err != nil || !ok {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	conv, err := h.store.GetConversation(id)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	conv.Participants, err = h.store.GetConversationParticipants(id)
	if err != nil {
		http.Error(w, "Failed to fetch conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)

	var req models.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.ConversationPrivate
	}

	// The creator is always a participant.
	hasCreator := false
	for _, id := range req.Participants {
		if id == user.ID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		req.Participants = append(req.Participants, user.ID)
	}
	if len(req.Participants) < 2 {
		http.Error(w, "Conversation must have at least 2 participants", http.StatusBadRequest)
		return
	}

	// A two-party private conversation is deduplicated.
	if req.Type == models.ConversationPrivate && len(req.Participants) == 2 {
		other := req.Participants[0]
		if other == user.ID {
			other = req.Participants[1]
		}
		existing, err := h.store.GetExistingPrivateConversation(user.ID, other)
		if err != nil {
			http.Error(w, "Failed to check existing conversation", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			writeJSON(w, http.StatusOK, map[string]any{"conversation": existing, "existed": true})
			return
		}
	}

	conv, err := h.store.CreateConversation(req.Name, req.Type, req.Participants)
	if err != nil {
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}
	conv.Participants, _ = h.store.GetConversationParticipants(conv.ID)

	writeJSON(w, http.StatusCreated, map[string]any{"conversation": conv, "existed": false})
}

func (h *Handlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	ok, err := h.store.IsParticipant(id, user.ID)
	if err != nil || !ok {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	if err := h.store.DeleteConversation(id); err != nil {
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Conversation deleted successfully"})
}

// Message handlers

func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	conversationID, err := strconv.ParseInt(mux.Vars(r)["conversationId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	ok, err := h.store.IsParticipant(conversationID, user.ID)
	if err != nil || !ok {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	page := 1
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	messages, total, err := h.store.GetConversationMessages(conversationID, limit, (page-1)*limit)
	if err != nil {
		http.Error(w, "Failed to fetch messages", http.StatusInternalServerError)
		return
	}

	pages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"pagination": map[string]any{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}

// HandleSendMessage is the REST fallback for send; it goes through the same
// lifecycle handler as the gateway, broadcast included.
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	conversationID, err := strconv.ParseInt(mux.Vars(r)["conversationId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.hub.Chat().Send(conversationID, user.ID, req.Content, req.Type, req.FileURL, req.FileName)
	if err != nil {
		chatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) HandleEditMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	messageID, err := strconv.ParseInt(mux.Vars(r)["messageId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req models.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.hub.Chat().Edit(messageID, user.ID, req.Content)
	if err != nil {
		chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handlers) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r)
	messageID, err := strconv.ParseInt(mux.Vars(r)["messageId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if _, err := h.hub.Chat().Delete(messageID, user.ID); err != nil {
		chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Message deleted successfully"})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
