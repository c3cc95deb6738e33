package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/composer"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage/memory"
	"github.com/linguachat/internal/store"
	"github.com/linguachat/internal/summary"
	"github.com/linguachat/internal/translate"
)

type dictTranslator struct {
	words map[string]string
}

func (d *dictTranslator) TranslateText(_ context.Context, text, _, _ string) (string, error) {
	if t, ok := d.words[text]; ok {
		return t, nil
	}
	return text, nil
}

func (d *dictTranslator) TranslateAudio(context.Context, translate.AudioRequest) error { return nil }

type staticUploader struct{ calls int }

func (u *staticUploader) Upload(_ context.Context, _ []byte, mimeHint string) (string, error) {
	u.calls++
	return "https://media.test/" + strings.ReplaceAll(mimeHint, "/", "-"), nil
}

type testEnv struct {
	router    chi.Router
	store     *store.Memory
	summaries *summary.Synchronizer
	drafts    *composer.Drafts
	uploader  *staticUploader
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := feed.NewHub(100)
	t.Cleanup(hub.Shutdown)
	st := store.NewMemory(hub)
	mem := memory.New()
	mem.PutParticipant(model.Participant{ID: "alice", Username: "Alice", Language: "en"})
	mem.PutParticipant(model.Participant{ID: "bob", Username: "Bob", Language: "fr"})
	mem.PutParticipant(model.Participant{ID: "carol", Username: "Carol", Language: "de"})
	summaries := summary.NewSynchronizer(mem)
	drafts := composer.NewDrafts()
	uploader := &staticUploader{}
	tr := &dictTranslator{words: map[string]string{"hello": "bonjour"}}
	comp := composer.New(uploader, tr, st, summaries, mem, nil)

	h := &Handlers{
		Chats:    NewChatHandler(st, summaries, mem),
		Messages: NewMessageHandler(st, comp, drafts, summaries, 1<<20),
		WS:       NewWSHandler(st, summaries, drafts, "*", 1<<16),
	}
	r := chi.NewRouter()
	h.Mount(r)
	return &testEnv{router: r, store: st, summaries: summaries, drafts: drafts, uploader: uploader}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createChat(t *testing.T, from, to string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/chats", from, []byte(`{"user_id":"`+to+`"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	return chat.ID
}

func multipartText(t *testing.T, text string, image []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", text))
	if image != nil {
		part, err := mw.CreateFormFile("image", "pic.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestCreateChat(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	assert.Equal(t, PersonalChatID("bob", "alice"), chatID)

	// same pair again returns the same chat
	again := env.createChat(t, "bob", "alice")
	assert.Equal(t, chatID, again)

	for user, peer := range map[string]string{"alice": "bob", "bob": "alice"} {
		rec := env.do(t, http.MethodGet, "/api/chats", user, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var items []model.ChatSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, chatID, items[0].ChatID)
		assert.Equal(t, peer, items[0].ReceiverID)
	}
}

func TestCreateChatRejects(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{"no identity", "", `{"user_id":"bob"}`, http.StatusUnauthorized},
		{"self", "alice", `{"user_id":"alice"}`, http.StatusBadRequest},
		{"unknown user", "alice", `{"user_id":"nobody"}`, http.StatusNotFound},
		{"bad json", "alice", `{`, http.StatusBadRequest},
		{"empty user", "alice", `{"user_id":" "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/chats", tt.user, []byte(tt.body), "application/json")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSendTextAndRenderPerViewer(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")

	body, ct := multipartText(t, "hello", nil)
	rec := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", "alice", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	view := func(user string) model.ConversationView {
		rec := env.do(t, http.MethodGet, "/api/chats/"+chatID+"/messages", user, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var v model.ConversationView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
		return v
	}
	a, b := view("alice"), view("bob")
	require.Len(t, a.Messages, 1)
	require.Len(t, b.Messages, 1)
	assert.Equal(t, "hello", a.Messages[0].Text)
	assert.True(t, a.Messages[0].Own)
	assert.Equal(t, "bonjour", b.Messages[0].Text)
	assert.False(t, b.Messages[0].Own)

	entry, err := env.summaries.Lookup(context.Background(), "bob", chatID)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", entry.LastMessage)
	assert.False(t, entry.IsSeen)

	rec = env.do(t, http.MethodPost, "/api/chats/"+chatID+"/seen", "bob", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	entry, err = env.summaries.Lookup(context.Background(), "bob", chatID)
	require.NoError(t, err)
	assert.True(t, entry.IsSeen)
}

func TestSendImageSkipsTranslation(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	body, ct := multipartText(t, "look", png)
	rec := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", "alice", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.uploader.calls)

	snap, err := env.store.Snapshot(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	m := snap.Messages[0]
	assert.Equal(t, model.ContentImage, m.Kind())
	assert.Empty(t, m.TranslatedText)
	assert.Contains(t, m.Img, "image-png")
}

func TestSendEmptyDraftIsNoop(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	body, ct := multipartText(t, "   ", nil)
	rec := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", "alice", body, ct)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	snap, err := env.store.Snapshot(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
}

func TestNonMemberIsForbidden(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	rec := env.do(t, http.MethodGet, "/api/chats/"+chatID+"/messages", "carol", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chats/missing/messages", "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliverAudio(t *testing.T) {
	t.Setenv("INTERNAL_SECRET", "")
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	payload := `{"sender_id":"alice","receiver_id":"bob","audio":"https://media.test/a.mp3","translated_audio":"https://media.test/a-fr.mp3"}`

	req := httptest.NewRequest(http.MethodPost, "/internal/chats/"+chatID+"/audio", strings.NewReader(payload))
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// forwarding headers are client-controlled and must not unlock the endpoint
	req = httptest.NewRequest(http.MethodPost, "/internal/chats/"+chatID+"/audio", strings.NewReader(payload))
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Real-Ip", "10.0.0.1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	snap, err := env.store.Snapshot(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)

	req = httptest.NewRequest(http.MethodPost, "/internal/chats/"+chatID+"/audio", strings.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	snap, err = env.store.Snapshot(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "https://media.test/a.mp3", snap.Messages[0].ViewFor("alice").Audio)
	assert.Equal(t, "https://media.test/a-fr.mp3", snap.Messages[0].ViewFor("bob").Audio)

	entry, err := env.summaries.Lookup(context.Background(), "bob", chatID)
	require.NoError(t, err)
	assert.Equal(t, voiceSummary, entry.LastMessage)
}

func dial(t *testing.T, srv *httptest.Server, path, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := http.Header{}
	header.Set(middleware.UserIDHeader, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type snapshotEvent struct {
	Type    string                 `json:"type"`
	Payload model.ConversationView `json:"payload"`
}

func TestFeedStreamsSnapshots(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, "/ws/chats/"+chatID, "bob")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev snapshotEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Type)
	assert.Empty(t, ev.Payload.Messages)

	body, ct := multipartText(t, "hello", nil)
	rec := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", "alice", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.ReadJSON(&ev))
	require.Len(t, ev.Payload.Messages, 1)
	assert.Equal(t, "bonjour", ev.Payload.Messages[0].Text)
}

func TestRecordThenSendUsesAudio(t *testing.T) {
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, "/ws/chats/"+chatID+"/record", "alice")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("ID3")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frames")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("stop")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp RecordResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, 2, resp.Chunks)
	assert.Equal(t, len("ID3frames"), resp.Size)
	assert.NotEmpty(t, resp.Ref)
	assert.True(t, env.drafts.HasAudio(chatID, "alice"))

	body, ct := multipartText(t, "", nil)
	rec := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", "alice", body, ct)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.False(t, env.drafts.HasAudio(chatID, "alice"))
	assert.Equal(t, 1, env.uploader.calls)

	// the voice message arrives later from the translation service
	snap, err := env.store.Snapshot(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
}

func TestDeliverAudioRequiresSecretWhenConfigured(t *testing.T) {
	t.Setenv("INTERNAL_SECRET", "tr-s3cret")
	env := newEnv(t)
	chatID := env.createChat(t, "alice", "bob")
	payload := `{"sender_id":"alice","audio":"https://media.test/a.mp3"}`

	post := func(remote, secret string) int {
		req := httptest.NewRequest(http.MethodPost, "/internal/chats/"+chatID+"/audio", strings.NewReader(payload))
		req.RemoteAddr = remote
		if secret != "" {
			req.Header.Set(middleware.InternalSecretHeader, secret)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, post("127.0.0.1:4000", ""))
	assert.Equal(t, http.StatusForbidden, post("127.0.0.1:4000", "wrong"))
	assert.Equal(t, http.StatusCreated, post("203.0.113.9:4000", "tr-s3cret"))
}
