package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("123456:TEST").WithBaseURL(srv.URL)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123456:TEST/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		assert.Equal(t, "hello", r.PostForm.Get("text"))
		assert.Equal(t, "7", r.PostForm.Get("reply_to_message_id"))
		assert.Contains(t, r.PostForm.Get("reply_markup"), `"callback_data":"DL_VIDEO"`)
		writeJSON(w, map[string]any{"ok": true, "result": map[string]any{"message_id": 99, "chat": map[string]any{"id": 42, "type": "private"}}})
	})

	msg, err := c.SendMessage(context.Background(), 42, "hello", &SendOptions{
		ReplyTo: 7,
		Markup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "Video", CallbackData: "DL_VIDEO"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 99, msg.MessageID)
}

func TestAPIErrorDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: file is too big"})
	})

	_, err := c.SendMessage(context.Background(), 1, "x", nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.True(t, IsTooLarge(err))
	assert.False(t, IsForbidden(err))
}

func TestIsMemberStatuses(t *testing.T) {
	status := "member"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("chat_id") == "@hidden" {
			writeJSON(w, map[string]any{"ok": false, "error_code": 403, "description": "Forbidden: bot is not a member"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "result": map[string]any{"status": status}})
	})
	ctx := context.Background()

	for _, s := range []string{"member", "administrator", "creator"} {
		status = s
		ok, err := c.IsMember(ctx, "@chan", 5)
		require.NoError(t, err)
		assert.True(t, ok, s)
	}
	for _, s := range []string{"left", "kicked", "restricted"} {
		status = s
		ok, err := c.IsMember(ctx, "@chan", 5)
		require.NoError(t, err)
		assert.False(t, ok, s)
	}

	ok, err := c.IsMember(ctx, "@hidden", 5)
	assert.False(t, ok)
	assert.True(t, IsForbidden(err))
}

func TestSendVideoMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake-video"), 0o644))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendVideo"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "10", r.FormValue("chat_id"))
		assert.Equal(t, "<b>t</b>", r.FormValue("caption"))
		assert.Equal(t, "true", r.FormValue("supports_streaming"))
		f, hdr, err := r.FormFile("video")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "clip.mp4", hdr.Filename)
		assert.Equal(t, "fake-video", string(body))
		writeJSON(w, map[string]any{"ok": true, "result": map[string]any{"message_id": 1, "chat": map[string]any{"id": 10}}})
	})

	err := c.SendVideo(context.Background(), 10, path, MediaOptions{Caption: "<b>t</b>", ParseMode: "HTML", ReplyTo: 3})
	require.NoError(t, err)
}

func TestUploadRejectedWith413(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.m4a")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})
	err := c.SendAudio(context.Background(), 1, path, MediaOptions{})
	require.Error(t, err)
	assert.True(t, IsTooLarge(err))
}

func TestEntityTextUTF16(t *testing.T) {
	// the emoji takes two UTF-16 units
	text := "😀 see https://vm.tiktok.com/abc"
	assert.Equal(t, "https://vm.tiktok.com/abc", EntityText(text, MessageEntity{Type: "url", Offset: 7, Length: 25}))
	assert.Equal(t, "", EntityText(text, MessageEntity{Offset: 100, Length: 3}))
}

func TestUpdateKind(t *testing.T) {
	u := Update{Message: &Message{SuccessfulPayment: &SuccessfulPayment{}, From: &User{ID: 4}}}
	assert.Equal(t, "successful_payment", u.Kind())
	assert.Equal(t, int64(4), u.UserID())
	assert.Equal(t, "other", (&Update{}).Kind())
}

func TestSetWebhook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123456:TEST/setWebhook", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://bot.example.com/telegram/webhook", r.PostForm.Get("url"))
		assert.Equal(t, "s3cret", r.PostForm.Get("secret_token"))
		writeJSON(w, map[string]any{"ok": true, "result": true})
	})

	require.NoError(t, c.SetWebhook(context.Background(), "https://bot.example.com/telegram/webhook", "s3cret"))
}
