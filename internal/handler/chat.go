package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/store"
	"github.com/linguachat/internal/summary"
)

// chatNamespace даёт детерминированный id личного чата по паре участников.
var chatNamespace = uuid.MustParse("6f1c2b7e-4a53-4c1e-9d0f-6a0b8f3e2c11")

// Directory: справочник участников (postgres users или память).
type Directory interface {
	Get(ctx context.Context, id string) (*model.Participant, error)
}

type ChatHandler struct {
	store     store.Store
	summaries *summary.Synchronizer
	directory Directory
}

func NewChatHandler(st store.Store, summaries *summary.Synchronizer, directory Directory) *ChatHandler {
	return &ChatHandler{store: st, summaries: summaries, directory: directory}
}

type CreateChatRequest struct {
	UserID string `json:"user_id"`
}

// PersonalChatID возвращает один и тот же id для пары в любом порядке.
func PersonalChatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return uuid.NewSHA1(chatNamespace, []byte(pair[0]+":"+pair[1])).String()
}

// CreateChat создаёт (или возвращает существующий) личный чат и записи в списках чатов обоих.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	currentUserID := middleware.GetUserID(r.Context())
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if req.UserID == currentUserID {
		writeError(w, http.StatusBadRequest, "cannot create chat with yourself")
		return
	}
	if _, err := h.directory.Get(r.Context(), req.UserID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAppError(w, err)
		return
	}

	chat := &model.Chat{
		ID:        PersonalChatID(currentUserID, req.UserID),
		Members:   []string{currentUserID, req.UserID},
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), chat); err != nil {
		logger.Errorf("create chat %s: %v", chat.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	for _, pair := range [][2]string{{currentUserID, req.UserID}, {req.UserID, currentUserID}} {
		entry := model.ChatSummary{ChatID: chat.ID, ReceiverID: pair[1], IsSeen: true, UpdatedAt: chat.CreatedAt}
		if err := h.summaries.Add(r.Context(), pair[0], entry); err != nil {
			logger.Warnf("create chat %s: summary for %s: %v", chat.ID, pair[0], err)
		}
	}
	existing, err := h.store.Chat(r.Context(), chat.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, existing)
}

// ListChats отдаёт список чатов текущего пользователя, свежие первыми.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	items, err := h.summaries.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// memberChat загружает чат из URL и проверяет, что текущий пользователь его участник.
// Возвращает чат и собеседника; при ошибке ответ уже записан.
func memberChat(w http.ResponseWriter, r *http.Request, st store.Store) (*model.Chat, string, bool) {
	chatID := chi.URLParam(r, "chatId")
	chat, err := st.Chat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return nil, "", false
		}
		writeAppError(w, err)
		return nil, "", false
	}
	peer := chat.Peer(middleware.GetUserID(r.Context()))
	if peer == "" {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return nil, "", false
	}
	return chat, peer, true
}
