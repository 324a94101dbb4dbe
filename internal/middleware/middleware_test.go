package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/config"
)

const secret = "test-secret"

func token(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	}, mw...)
	return e
}

func get(e *echo.Echo, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newEcho(JWTAuth(secret))
	exp := time.Now().Add(time.Hour).Unix()

	rec := get(e, token(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 42, "role": RoleCustomer, "exp": exp}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"role":"CUSTOMER"}`, rec.Body.String())

	rec = get(e, token(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": RoleOwner, "exp": exp}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"OWNER"}`, rec.Body.String())

	cases := map[string]string{
		"missing":   "",
		"garbage":   "not-a-jwt",
		"expired":   token(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(-time.Minute).Unix()}),
		"no id":     token(t, jwt.SigningMethodHS256, jwt.MapClaims{"role": RoleCustomer, "exp": exp}),
		"wrong alg": token(t, jwt.SigningMethodHS512, jwt.MapClaims{"user_id": 42, "exp": exp}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(e, tok).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := newEcho(JWTAuth(secret), RequireRole(RoleOwner))
	exp := time.Now().Add(time.Hour).Unix()
	assert.Equal(t, http.StatusForbidden, get(e, token(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1, "role": RoleCustomer, "exp": exp})).Code)
	assert.Equal(t, http.StatusOK, get(e, token(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1, "role": RoleOwner, "exp": exp})).Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := newEcho(RequestLogger())
	rec := get(e, "")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *memCache) SetEx(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCacheKeysPerUser(t *testing.T) {
	store := &memCache{data: map[string][]byte{}}
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Second, KeyStrategy: "user_route_query", Prefix: "cache"}

	calls := 0
	e := echo.New()
	e.GET("/shows/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"show": c.Param("id"), "user": userKey(c)})
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := c.Request().Header.Get("X-User"); u == "1" {
				c.Set(ctxUserID, uint64(1))
			}
			return next(c)
		}
	}, NewRedisCache(cfg, store))

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/shows/5", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	first := do("1")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do("1")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	other := do("2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"show":"5","user":"anon"}`, other.Body.String())
	assert.Equal(t, 2, calls)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(200, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 200, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

type scriptStub struct {
	redis.Scripter
	tokens int64
}

func (s *scriptStub) EvalSha(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	if s.tokens > 0 {
		s.tokens--
		return redis.NewCmdResult([]interface{}{int64(1), s.tokens, int64(0)}, nil)
	}
	return redis.NewCmdResult([]interface{}{int64(0), int64(0), int64(1500)}, nil)
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := newEcho(NewTokenBucket(cfg, &scriptStub{tokens: 1}))

	rec := get(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = get(e, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/orders")
	c.Set(ctxUserID, uint64(9))

	assert.Equal(t, "rl:user:9", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
	assert.Equal(t, "rl:ip:10.0.0.1:user:9:route:POST /v1/orders", rateKey(config.RateLimitConfig{Prefix: "rl"}, c))
}
