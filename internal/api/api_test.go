package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/domain/admin"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/domain/user"
	"github.com/example/storefront/internal/infrastructure/paypal"
	"github.com/example/storefront/internal/infrastructure/store/mocks"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakePayPal answers the token, create and capture endpoints
type fakePayPal struct {
	createStatus atomic.Int32
	captureCalls atomic.Int32
	hangUp       atomic.Bool
}

func (g *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/oauth2/token":
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":32400}`))
	case r.URL.Path == "/v2/checkout/orders":
		if g.hangUp.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		if status := int(g.createStatus.Load()); status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed."}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"PAY-1","status":"CREATED"}`))
	case strings.HasSuffix(r.URL.Path, "/capture"):
		g.captureCalls.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"PAY-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[
			{"amount":{"currency_code":"USD","value":"20.00"}}]}}]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testEnv struct {
	t        *testing.T
	store    *mocks.MemoryStore
	jwt      *auth.JWTService
	users    *user.Service
	paypal   *fakePayPal
	server   *httptest.Server
	category model.Category
	product  model.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gw := &fakePayPal{}
	gwServer := httptest.NewServer(gw)
	t.Cleanup(gwServer.Close)

	ms := mocks.NewMemoryStore()
	pub := mocks.NewMockPublisher()
	jwtService := auth.NewJWTService(testSecret, 15*time.Minute, time.Hour)
	users := user.NewServiceWithCost(ms, bcrypt.MinCost)
	client := paypal.NewClient(paypal.Config{
		ClientID: "client",
		Secret:   "secret",
		BaseURL:  gwServer.URL,
		Currency: "USD",
	})

	handlers := NewHandlers(Services{
		Cart:    cart.NewService(ms),
		Order:   order.NewService(ms, pub),
		Payment: payment.NewService(ms, client, pub),
		Catalog: catalog.NewService(ms),
		User:    users,
		Admin:   admin.NewService(ms),
		JWT:     jwtService,
	}, false)

	server := httptest.NewServer(NewRouter(RouterConfig{
		Handlers:   handlers,
		JWTService: jwtService,
		Staging:    session.NewRedisStaging(rdb, time.Hour),
	}))
	t.Cleanup(server.Close)

	cat := ms.SeedCategory(model.Category{Name: "Accessories", Slug: "accessories"})
	return &testEnv{
		t:        t,
		store:    ms,
		jwt:      jwtService,
		users:    users,
		paypal:   gw,
		server:   server,
		category: cat,
		product: ms.SeedProduct(model.Product{
			CategoryID: cat.ID,
			Name:       "Leather Wallet",
			Price:      decimal.RequireFromString("10.00"),
			IsActive:   true,
		}),
	}
}

// testClient keeps its own cookie jar, so each client is one browser session
type testClient struct {
	env   *testEnv
	http  *http.Client
	token string
}

func (e *testEnv) anonymous() *testClient {
	e.t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &testClient{
		env: e,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// clientFor returns a session authenticated as a seeded account
func (e *testEnv) clientFor(role string) (*testClient, model.Account) {
	e.t.Helper()
	account := e.store.SeedAccount(model.Account{
		Email:     role + "-" + uuid.NewString()[:8] + "@example.com",
		FirstName: "Ana",
		LastName:  "Gomez",
		Role:      role,
		IsActive:  true,
	})
	pair, err := e.jwt.Issue(account.ID, account.Email, account.Role)
	require.NoError(e.t, err)

	c := e.anonymous()
	c.token = pair.AccessToken
	return c, account
}

func (c *testClient) do(method, path, contentType string, body io.Reader) *http.Response {
	c.env.t.Helper()
	req, err := http.NewRequest(method, c.env.server.URL+path, body)
	require.NoError(c.env.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.env.t, err)
	c.env.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *testClient) get(path string) *http.Response {
	return c.do(http.MethodGet, path, "", nil)
}

func (c *testClient) postJSON(path string, v any) *http.Response {
	c.env.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(c.env.t, err)
	return c.do(http.MethodPost, path, "application/json", strings.NewReader(string(data)))
}

func (c *testClient) putJSON(path string, v any) *http.Response {
	c.env.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(c.env.t, err)
	return c.do(http.MethodPut, path, "application/json", strings.NewReader(string(data)))
}

func (c *testClient) postForm(path string, values url.Values) *http.Response {
	return c.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
}

// sessionKey returns the sessionid cookie the server minted for this client
func (c *testClient) sessionKey() string {
	u, _ := url.Parse(c.env.server.URL)
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == middleware.SessionCookieName {
			return cookie.Value
		}
	}
	return ""
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func decodeList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var body []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// decimalField reads a decimal encoded as a JSON string
func decimalField(t *testing.T, body map[string]any, key string) decimal.Decimal {
	t.Helper()
	raw, ok := body[key].(string)
	require.True(t, ok, "field %s is not a string: %v", key, body[key])
	return decimal.RequireFromString(raw)
}

func validShippingForm() map[string]string {
	return map[string]string{
		"shipping_name":    "Ana Gomez",
		"shipping_email":   "ana@example.com",
		"shipping_phone":   "3001234567",
		"shipping_address": "Calle 1 # 2-3",
		"shipping_city":    "Bogota",
		"payment_method":   "CASH",
	}
}
