// Package translate is the client of the remote translation service.
//
// Text is translated synchronously. Audio is dispatched fire-and-forget: the
// service transcribes, translates and synthesizes the voice message and
// delivers the result back through the internal audio endpoint.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
)

// AudioRequest carries the context the remote service needs to deliver a
// translated voice message on its own.
type AudioRequest struct {
	AudioURL   string
	SourceLang string
	TargetLang string
	ReceiverID string
	SenderID   string
	ChatID     string
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type textRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type textResponse struct {
	TranslatedText *string `json:"translated_text"`
}

// TranslateText returns text translated from source to target language.
// Identical languages return the input without a network call.
func (c *Client) TranslateText(ctx context.Context, text, source, target string) (string, error) {
	if sameLang(source, target) {
		return text, nil
	}
	defer logger.DeferLogDuration("translate.TranslateText", time.Now())()

	body, err := json.Marshal(textRequest{Text: text, SourceLang: source, TargetLang: target})
	if err != nil {
		return "", apperr.Translation(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Translation(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Errorf("translate text: request failed: %v", err)
		return "", apperr.Translation(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		logger.Errorf("translate text: %v", err)
		return "", apperr.Translation(err)
	}

	var out textResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", apperr.Translation(fmt.Errorf("decode response: %w", err))
	}
	if out.TranslatedText == nil {
		return "", apperr.Translation(errors.New("response has no translated_text"))
	}
	return *out.TranslatedText, nil
}

// TranslateAudio hands a recorded voice message over to the service. A 2xx
// answer means the request was accepted; the translated message arrives later.
func (c *Client) TranslateAudio(ctx context.Context, in AudioRequest) error {
	defer logger.DeferLogDuration("translate.TranslateAudio", time.Now())()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := []struct{ k, v string }{
		{"file", in.AudioURL},
		{"source_lang", in.SourceLang},
		{"target_lang", in.TargetLang},
		{"receiver_id", in.ReceiverID},
		{"sender_id", in.SenderID},
		{"chat_id", in.ChatID},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.k, f.v); err != nil {
			return apperr.Translation(err)
		}
	}
	if err := mw.Close(); err != nil {
		return apperr.Translation(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate_audio", &body)
	if err != nil {
		return apperr.Translation(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Errorf("translate audio: request failed: %v", err)
		return apperr.Translation(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		logger.Errorf("translate audio chat=%s: %v", in.ChatID, err)
		return apperr.Translation(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("upstream status=%d body=%s", resp.StatusCode, bytes.TrimSpace(msg))
}

func sameLang(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
