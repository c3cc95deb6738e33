package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/push"
)

// Subscriptions: подписки на пуш (push.Client поверх микросервиса push).
type Subscriptions interface {
	Subscribe(ctx context.Context, userID string, sub push.PushSubscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

// PushHandler проксирует подписку браузера в push-сервис от имени текущего пользователя.
type PushHandler struct {
	subs Subscriptions
}

func NewPushHandler(subs Subscriptions) *PushHandler {
	return &PushHandler{subs: subs}
}

// SubscribeRequest: тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription push.PushSubscription `json:"subscription"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sub := req.Subscription
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.subs.Subscribe(r.Context(), userID, sub); err != nil {
		logger.Errorf("push subscribe user=%s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.subs.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe user=%s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
