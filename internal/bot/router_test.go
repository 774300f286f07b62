package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{"/start", "start", []string{}, true},
		{"/Start@media_bot", "start", []string{}, true},
		{"/setuserpremium 42  7", "setuserpremium", []string{"42", "7"}, true},
		{"/", "", nil, false},
		{"/@bot", "", nil, false},
		{"hello /start", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			if tt.ok {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []telegram.MessageEntity
		want     string
	}{
		{"entity", "see https://youtu.be/abc now", []telegram.MessageEntity{{Type: "url", Offset: 4, Length: 20}}, "https://youtu.be/abc"},
		{"text link", "click here", []telegram.MessageEntity{{Type: "bold", Offset: 0, Length: 5}, {Type: "text_link", Offset: 0, Length: 5, URL: "https://x.com/p/1"}}, "https://x.com/p/1"},
		{"regex with scheme", "grab http://vm.tiktok.com/ZM1/ thanks", nil, "http://vm.tiktok.com/ZM1/"},
		{"regex adds scheme", "www.tiktok.com/@u/video/1", nil, "https://www.tiktok.com/@u/video/1"},
		{"no url", "just words here", nil, ""},
		{"empty", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURL(tt.text, tt.entities))
		})
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	seen    []int
	active  atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
}

func (h *recordingHandler) HandleUpdate(_ context.Context, upd *telegram.Update) {
	n := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		cur := h.maxSeen.Load()
		if n <= cur || h.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if upd.UpdateID < 0 {
		panic("boom")
	}
	if h.release != nil {
		<-h.release
	}
	h.mu.Lock()
	h.seen = append(h.seen, upd.UpdateID)
	h.mu.Unlock()
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	h := &recordingHandler{release: make(chan struct{})}
	d := NewDispatcher(h, 2)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, &telegram.Update{UpdateID: 1}))
	require.NoError(t, d.Dispatch(ctx, &telegram.Update{UpdateID: 2}))

	// the third dispatch blocks until a slot frees up
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Dispatch(blocked, &telegram.Update{UpdateID: 3}), context.DeadlineExceeded)

	close(h.release)
	d.Wait()
	assert.ElementsMatch(t, []int{1, 2}, h.seen)
	assert.LessOrEqual(t, h.maxSeen.Load(), int32(2))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h, 1)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, &telegram.Update{UpdateID: -1}))
	require.NoError(t, d.Dispatch(ctx, &telegram.Update{UpdateID: 7}))
	d.Wait()
	assert.Equal(t, []int{7}, h.seen)
}
