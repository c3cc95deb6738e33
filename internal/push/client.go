package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
)

// Client вызывает микросервис пуш-уведомлений. Если URL пустой: методы no-op.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент. baseURL пустой: пуши отключены.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

// SubscribeRequest: тело запроса подписки.
type SubscribeRequest struct {
	UserID       string           `json:"user_id"`
	Subscription PushSubscription `json:"subscription"`
}

// PushSubscription: подписка из браузера.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// NotifyRequest: запрос на отправку уведомления.
type NotifyRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type unsubscribeRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
}

func (c *Client) call(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := middleware.InternalSecret(); secret != "" {
		req.Header.Set(middleware.InternalSecretHeader, secret)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}

// Subscribe сохраняет подписку для user_id на push-сервисе.
func (c *Client) Subscribe(ctx context.Context, userID string, sub PushSubscription) error {
	if !c.Enabled() {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

// Unsubscribe удаляет подписку по endpoint.
func (c *Client) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if !c.Enabled() {
		return nil
	}
	return c.call(ctx, http.MethodDelete, "/api/subscribe", unsubscribeRequest{UserID: userID, Endpoint: endpoint})
}

// Notify отправляет пуш получателю нового сообщения. Ошибки только логируются.
func (c *Client) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if !c.Enabled() {
		return
	}
	if err := c.call(ctx, http.MethodPost, "/api/notify", NotifyRequest{UserID: userID, Title: title, Body: body, Data: data}); err != nil {
		logger.Errorf("push notify user=%s: %v", userID, err)
	}
}
