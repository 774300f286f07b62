package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/fairy-root/media-downloader-bot/internal/repository/memory"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/fairy-root/media-downloader-bot/internal/service/entitlement"
	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/fairy-root/media-downloader-bot/internal/service/quota"
	settingssvc "github.com/fairy-root/media-downloader-bot/internal/service/settings"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken   = "123456:TEST-TOKEN"
	testAdminID = 1
)

// signInitData builds init data the way Telegram signs it for a Mini App.
func signInitData(t *testing.T, userID int64) string {
	t.Helper()
	values := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"query_id":  "AAH-test",
		"user":      `{"id":` + strconv.FormatInt(userID, 10) + `,"first_name":"Test","username":"tester"}`,
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values[k])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(testToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))

	q := url.Values{}
	for k, v := range values {
		q.Set(k, v)
	}
	q.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return q.Encode()
}

type stubPublisher struct {
	got [][]byte
	err error
}

func (p *stubPublisher) Publish(_ context.Context, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, payload)
	return nil
}

type testEnv struct {
	router    *gin.Engine
	users     *usersvc.Service
	settings  *settingssvc.Service
	publisher *stubPublisher
}

func newTestEnv(t *testing.T, rdb *rplatform.Client) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := usersvc.NewService(memory.NewUserRepository())
	settings := settingssvc.NewService(memory.NewSettingsRepository())
	resolver := entitlement.NewResolver(users, settings, []int64{testAdminID})
	engine := premium.NewEngine(users, nil, premium.DefaultCatalog)
	ledger := quota.NewLedger(users, 5, time.UTC)
	pub := &stubPublisher{}

	router := NewRouter(Deps{
		Debug:       true,
		BotToken:    testToken,
		InitDataTTL: time.Hour,
		IsAdmin:     resolver.ActsAsAdmin,
		Admin:       admin.NewService(users, settings, resolver, engine, ledger),
		Redis:       rdb,
		Webhook:     NewWebhookHandler("s3cret", pub),
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	})
	return &testEnv{router: router, users: users, settings: settings, publisher: pub}
}

func (e *testEnv) do(t *testing.T, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-Telegram-Init-Data", signInitData(t, userID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "GET", "/health", "", 0)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, "GET", "/ready", "", 0)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/metrics", "", 0)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &healthHandlers{checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}}
	r := gin.New()
	r.GET("/ready", h.ready)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, stdhttp.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unavailable")
}

func TestAdminAPIRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "GET", "/api/v1/admin/stats", "", 0)
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)

	rec = env.do(t, "GET", "/api/v1/admin/stats", "", 100)
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	req := httptest.NewRequest("GET", "/api/v1/admin/stats", nil)
	req.Header.Set("X-Telegram-Init-Data", "user=%7B%22id%22%3A1%7D&auth_date=1&hash=deadbeef")
	bad := httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	assert.Equal(t, stdhttp.StatusUnauthorized, bad.Code)

	rec = env.do(t, "GET", "/api/v1/admin/stats", "", testAdminID)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
}

func TestAdminAPIRejectsBannedAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.settings.Ban(context.Background(), testAdminID)
	require.NoError(t, err)

	rec := env.do(t, "GET", "/api/v1/admin/stats", "", testAdminID)
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)
	rec = env.do(t, "PUT", "/api/v1/admin/channel-gate", `{"enabled":true}`, testAdminID)
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	_, err = env.settings.Unban(context.Background(), testAdminID)
	require.NoError(t, err)
	rec = env.do(t, "GET", "/api/v1/admin/stats", "", testAdminID)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
}

func TestAdminPremiumEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "POST", "/api/v1/admin/users/42/premium", `{"days":0}`, testAdminID)
	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/admin/users/abc/premium", `{"days":3}`, testAdminID)
	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/admin/users/42/premium", `{"days":3}`, testAdminID)
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	var granted grantPremiumResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &granted))
	assert.Equal(t, int64(42), granted.UserID)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), granted.ExpiresAt, time.Minute)

	rec = env.do(t, "DELETE", "/api/v1/admin/users/42/premium", "", testAdminID)
	assert.Equal(t, stdhttp.StatusNoContent, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/admin/users/42/premium", "", testAdminID)
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/admin/users/777/premium", "", testAdminID)
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RequestID)
}

func TestAdminBanEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := env.do(t, "POST", "/api/v1/admin/bans/1", "", testAdminID)
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	rec = env.do(t, "POST", "/api/v1/admin/bans/42", "", testAdminID)
	assert.Equal(t, stdhttp.StatusNoContent, rec.Code)
	banned, err := env.settings.IsBanned(ctx, 42)
	require.NoError(t, err)
	assert.True(t, banned)

	rec = env.do(t, "POST", "/api/v1/admin/bans/42", "", testAdminID)
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/admin/bans/42", "", testAdminID)
	assert.Equal(t, stdhttp.StatusNoContent, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/admin/bans/42", "", testAdminID)
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)
}

func TestAdminChannelGateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "PUT", "/api/v1/admin/channel-gate", `{"enabled":true,"channels":["news"]}`, testAdminID)
	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/admin/channel-gate", `{"enabled":true,"channels":["@news","-100123"]}`, testAdminID)
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	cfg, err := env.settings.ChannelGate(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"@news", "-100123"}, cfg.Channels)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, id := range []int64{300, 200} {
		_, err := env.users.Touch(ctx, id)
		require.NoError(t, err)
	}

	rec := env.do(t, "GET", "/api/v1/admin/users", "", testAdminID)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var body struct {
		Users []admin.UserView `json:"users"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Total)
	assert.Equal(t, int64(200), body.Users[0].ID)
}

func TestAdminGETCachedInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rplatform.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })
	env := newTestEnv(t, rdb)

	first := env.do(t, "GET", "/api/v1/admin/stats?view=full", "", testAdminID)
	require.Equal(t, stdhttp.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := env.do(t, "GET", "/api/v1/admin/stats?view=full", "", testAdminID)
	require.Equal(t, stdhttp.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestWebhook(t *testing.T) {
	env := newTestEnv(t, nil)

	send := func(secret, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/telegram/webhook", strings.NewReader(body))
		if secret != "" {
			req.Header.Set(secretHeader, secret)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, stdhttp.StatusUnauthorized, send("", `{"update_id":1}`).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, send("wrong", `{"update_id":1}`).Code)

	assert.Equal(t, stdhttp.StatusOK, send("s3cret", `not json`).Code)
	assert.Empty(t, env.publisher.got)

	assert.Equal(t, stdhttp.StatusOK, send("s3cret", `{"update_id":7,"message":{"message_id":1}}`).Code)
	require.Len(t, env.publisher.got, 1)
	assert.JSONEq(t, `{"update_id":7,"message":{"message_id":1}}`, string(env.publisher.got[0]))

	env.publisher.err = errors.New("stream down")
	assert.Equal(t, stdhttp.StatusServiceUnavailable, send("s3cret", `{"update_id":8}`).Code)
}
