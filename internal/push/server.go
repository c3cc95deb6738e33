package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/storage"
)

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Server: HTTP-часть push-сервиса: хранит подписки и рассылает Web Push через VAPID.
// vapid == nil: подписки сохраняются, отправка не выполняется.
type Server struct {
	subs      storage.PushSubscriptionStore
	vapid     *webpush.Options
	publicKey string
	send      sendFunc
}

func NewServer(subs storage.PushSubscriptionStore, keys *VAPIDKeys) *Server {
	s := &Server{subs: subs, send: webpush.SendNotificationWithContext}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		s.publicKey = keys.PublicKey
		s.vapid = &webpush.Options{
			Subscriber:      "linguachat-push",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return s
}

// Routes монтирует /api/vapid-public, /api/subscribe и /api/notify.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/vapid-public", s.handleVAPIDPublic)
	r.Route("/api", func(r chi.Router) {
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/notify", s.handleNotify)
	})
}

func (s *Server) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.publicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	sub := req.Subscription
	if req.UserID == "" || sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		http.Error(w, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		http.Error(w, "subscription encode", http.StatusInternalServerError)
		return
	}
	if err := s.subs.SavePushSubscription(r.Context(), req.UserID, sub.Endpoint, raw); err != nil {
		logger.Errorf("subscribe user=%s: %v", req.UserID, err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Endpoint == "" {
		http.Error(w, "user_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.subs.RemovePushSubscription(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("unsubscribe user=%s: %v", req.UserID, err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := s.subs.PushSubscriptions(ctx, req.UserID)
	if err != nil {
		logger.Errorf("notify user=%s: %v", req.UserID, err)
		http.Error(w, "failed to get subscriptions", http.StatusInternalServerError)
		return
	}
	if s.vapid == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})
	for _, raw := range list {
		var sub PushSubscription
		if json.Unmarshal(raw, &sub) != nil || sub.Endpoint == "" {
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := s.send(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("send %s: %v", sub.Endpoint[:min(50, len(sub.Endpoint))], err)
			continue
		}
		resp.Body.Close()
		// подписка отозвана браузером
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := s.subs.RemovePushSubscription(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("remove stale subscription user=%s: %v", req.UserID, err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
