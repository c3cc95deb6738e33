package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linguachat/internal/middleware"
)

// Handlers: все обработчики API-сервиса.
type Handlers struct {
	Chats    *ChatHandler
	Messages *MessageHandler
	WS       *WSHandler
	Push     *PushHandler // nil: пуши отключены
}

// Mount регистрирует маршруты API на r. Общие middleware (CORS, логирование) ставит вызывающий.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly)
		r.Post("/internal/chats/{chatId}/audio", h.Messages.DeliverAudio)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.RateLimitAPI())
		r.Post("/api/chats", h.Chats.CreateChat)
		r.Get("/api/chats", h.Chats.ListChats)
		r.Get("/api/chats/{chatId}/messages", h.Messages.GetMessages)
		r.Post("/api/chats/{chatId}/messages", h.Messages.SendMessage)
		r.Post("/api/chats/{chatId}/seen", h.Messages.MarkSeen)
		r.Get("/api/chats/{chatId}/draft", h.Messages.DraftStatus)
		if h.Push != nil {
			r.Post("/api/push/subscribe", h.Push.Subscribe)
			r.Delete("/api/push/subscribe", h.Push.Unsubscribe)
		}
		r.Get("/ws/chats/{chatId}", h.WS.ServeFeed)
		r.Get("/ws/chats/{chatId}/record", h.WS.ServeRecord)
	})
}
