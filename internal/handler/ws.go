package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguachat/internal/capture"
	"github.com/linguachat/internal/composer"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/store"
	"github.com/linguachat/internal/summary"
	"github.com/linguachat/internal/ws"
)

// maxRecording ограничивает длительность одной записи голосового.
const maxRecording = 5 * time.Minute

type WSHandler struct {
	store          store.Store
	summaries      *summary.Synchronizer
	drafts         *composer.Drafts
	allowedOrigins string
	maxChunk       int64
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins: как в CORS (через запятую или "*").
func NewWSHandler(st store.Store, summaries *summary.Synchronizer, drafts *composer.Drafts, allowedOrigins string, maxChunk int64) *WSHandler {
	return &WSHandler{store: st, summaries: summaries, drafts: drafts, allowedOrigins: allowedOrigins, maxChunk: maxChunk}
}

func (h *WSHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(h.allowedOrigins, r) },
	}
}

// ServeFeed подписывает соединение на снимки переписки чата.
func (h *WSHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	if !originAllowed(h.allowedOrigins, r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID := middleware.GetUserID(r.Context())

	ctx, cancel := context.WithCancel(context.Background())
	listener, err := h.store.Subscribe(ctx, chat.ID)
	if err != nil {
		cancel()
		writeAppError(w, err)
		return
	}
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		listener.Close()
		cancel()
		return
	}

	chatID := chat.ID
	onSeen := func(ctx context.Context) {
		if err := h.summaries.MarkSeen(ctx, userID, chatID); err != nil {
			logger.Warnf("ws: mark seen user=%s chat=%s: %v", userID, chatID, err)
		}
	}
	client := ws.NewClient(conn, listener, userID, onSeen)
	client.Start(ctx, cancel)
}

// RecordResponse: итог записи, отправляется текстовым кадром перед закрытием.
type RecordResponse struct {
	Ref        string `json:"ref"`
	MIME       string `json:"mime"`
	Size       int    `json:"size"`
	Chunks     int    `json:"chunks"`
	DurationMs int64  `json:"duration_ms"`
}

// ServeRecord принимает голос с микрофона браузера: бинарные кадры: аудио,
// текстовый "stop" или закрытие: конец записи. Готовая запись ждёт ближайшей отправки.
func (h *WSHandler) ServeRecord(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := memberChat(w, r, h.store)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws record upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), maxRecording)
	defer cancel()

	recorder := capture.NewRecorder(capture.NewConnDevice(conn, h.maxChunk))
	session, err := recorder.Start(ctx)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "audio device unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	select {
	case <-session.Ended():
	case <-ctx.Done():
	}
	audio := recorder.Stop(session)
	if audio == nil || audio.Size() == 0 {
		h.drafts.PutAudio(chat.ID, userID, nil)
	} else {
		h.drafts.PutAudio(chat.ID, userID, audio)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	resp := RecordResponse{}
	if audio != nil {
		resp = RecordResponse{
			Ref:        audio.Ref,
			MIME:       audio.MIME,
			Size:       audio.Size(),
			Chunks:     audio.ChunkCount,
			DurationMs: audio.Duration.Milliseconds(),
		}
	}
	if err := conn.WriteJSON(resp); err != nil {
		logger.Debugf("ws record: reply to %s: %v", userID, err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
