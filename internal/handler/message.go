package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linguachat/internal/composer"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/store"
	"github.com/linguachat/internal/summary"
)

// Sender: конвейер отправки (composer.Composer).
type Sender interface {
	Send(ctx context.Context, d *composer.Draft) error
}

type MessageHandler struct {
	store     store.Store
	sender    Sender
	drafts    *composer.Drafts
	summaries *summary.Synchronizer
	maxUpload int64
}

func NewMessageHandler(st store.Store, sender Sender, drafts *composer.Drafts, summaries *summary.Synchronizer, maxUpload int64) *MessageHandler {
	return &MessageHandler{store: st, sender: sender, drafts: drafts, summaries: summaries, maxUpload: maxUpload}
}

// GetMessages отдаёт текущий снимок переписки глазами текущего пользователя.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	snap, err := h.store.Snapshot(r.Context(), chat.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.ViewFor(middleware.GetUserID(r.Context())))
}

type SendResponse struct {
	Status string `json:"status"`
}

// SendMessage: multipart-форма с полем text и необязательным файлом image.
// Записанное по /record голосовое забирается в этот же черновик.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.SendMessage", time.Now())()
	chat, peer, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	draft := &composer.Draft{
		ChatID:     chat.ID,
		SenderID:   userID,
		ReceiverID: peer,
		Text:       r.FormValue("text"),
	}
	file, header, err := r.FormFile("image")
	if err == nil {
		data, readErr := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
		file.Close()
		if readErr != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		if int64(len(data)) > h.maxUpload {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		mimeHint := header.Header.Get("Content-Type")
		if mimeHint == "" || mimeHint == "application/octet-stream" {
			mimeHint = http.DetectContentType(data)
		}
		draft.Image = &composer.Attachment{Data: data, MIME: mimeHint}
	}
	draft.Audio = h.drafts.TakeAudio(chat.ID, userID)

	if draft.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	hasAudio := draft.Audio != nil
	if err := h.sender.Send(r.Context(), draft); err != nil {
		writeAppError(w, err)
		return
	}
	if hasAudio {
		writeJSON(w, http.StatusAccepted, SendResponse{Status: "translating"})
		return
	}
	writeJSON(w, http.StatusCreated, SendResponse{Status: "sent"})
}

// MarkSeen отмечает чат прочитанным в списке чатов текущего пользователя.
func (h *MessageHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	if err := h.summaries.MarkSeen(r.Context(), middleware.GetUserID(r.Context()), chat.ID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DraftStatus сообщает, ждёт ли отправки записанное голосовое.
func (h *MessageHandler) DraftStatus(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"has_audio": h.drafts.HasAudio(chat.ID, middleware.GetUserID(r.Context())),
	})
}

// AudioDelivery: тело от сервиса перевода с готовым голосовым сообщением.
type AudioDelivery struct {
	SenderID        string `json:"sender_id"`
	ReceiverID      string `json:"receiver_id"`
	Audio           string `json:"audio"`
	TranslatedAudio string `json:"translated_audio"`
}

// voiceSummary: текст последнего сообщения в списке чатов для голосовых.
const voiceSummary = "Voice message"

// DeliverAudio принимает переведённое голосовое от сервиса перевода (только внутренняя сеть).
func (h *MessageHandler) DeliverAudio(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	var req AudioDelivery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Audio = strings.TrimSpace(req.Audio)
	if req.Audio == "" || req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "sender_id and audio required")
		return
	}
	chat, err := h.store.Chat(r.Context(), chatID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	peer := chat.Peer(req.SenderID)
	if peer == "" || (req.ReceiverID != "" && req.ReceiverID != peer) {
		writeError(w, http.StatusBadRequest, "sender and receiver are not members of this chat")
		return
	}
	if req.TranslatedAudio == "" {
		req.TranslatedAudio = req.Audio
	}
	stored, err := h.store.Append(r.Context(), model.Message{
		ChatID:          chat.ID,
		SenderID:        req.SenderID,
		ReceiverID:      peer,
		Audio:           req.Audio,
		TranslatedAudio: req.TranslatedAudio,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	// ошибки логирует synchronizer
	_ = h.summaries.SyncAfterSend(r.Context(), summary.SyncInput{
		SenderID:       req.SenderID,
		ReceiverID:     peer,
		ChatID:         chat.ID,
		OriginalText:   voiceSummary,
		TranslatedText: voiceSummary,
	})
	writeJSON(w, http.StatusCreated, stored)
}
