package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/shop-monolith/modules/account"
	"github.com/example/shop-monolith/modules/blog"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/example/shop-monolith/modules/store"
	"github.com/example/shop-monolith/modules/throttle"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeMedia keeps objects in memory.
type fakeMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
}

func (m *fakeMedia) Store(_ context.Context, bucket, filename, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.seq++
	ref := fmt.Sprintf("%s/%d/%s", bucket, m.seq, filename)
	m.objects[ref] = data
	return ref, nil
}

func (m *fakeMedia) Upload(ctx context.Context, filename, contentType string, data []byte) (*media.Object, error) {
	if int64(len(data)) > m.MaxUpload() {
		return nil, media.ErrTooLarge
	}
	ref, err := m.Store(ctx, media.UploadsBucket, filename, contentType, data)
	if err != nil {
		return nil, err
	}
	return &media.Object{Ref: ref, Bucket: media.UploadsBucket, Name: filename, Size: int64(len(data))}, nil
}

func (m *fakeMedia) Open(_ context.Context, ref string) ([]byte, *media.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, nil, media.ErrObjectNotFound
	}
	return data, &media.Object{Ref: ref, ContentType: "text/plain", Size: int64(len(data))}, nil
}

func (m *fakeMedia) MaxUpload() int64 {
	return media.DefaultMaxUpload
}

// staticHealth reports a fixed health status.
type staticHealth struct {
	healthy bool
}

func (s staticHealth) Name() string                { return "static-health" }
func (s staticHealth) Start(context.Context) error { return nil }
func (s staticHealth) Stop(context.Context) error  { return nil }

func (s staticHealth) Health(context.Context) mono.HealthStatus {
	return mono.HealthStatus{Healthy: s.healthy, Message: "static"}
}

type testServer struct {
	app      *fiber.App
	accounts *account.Service
	shop     *shop.Service
	repos    *store.Repositories
	media    *fakeMedia
}

func setupServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()

	db, err := store.Open(store.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	repos := store.NewRepositories(db, 0)

	accounts, err := account.NewService(
		repos.Users,
		account.NewPasswordHasher(bcrypt.MinCost),
		account.NewJWTManager(account.JWTConfig{SecretKey: "test-secret", AccessTokenDuration: time.Minute}),
		account.NewMemorySessionStore(nil),
		time.Hour,
	)
	require.NoError(t, err)

	files := &fakeMedia{}
	shopSvc := shop.NewService(repos.Products, repos.Orders, repos.Users, nil, shop.Config{})
	shopSvc.SetMedia(files)

	deps := Deps{
		Shop:     shopSvc,
		Blog:     blog.NewService(repos.Blog),
		Accounts: accounts,
		Media:    files,
		Health:   map[string]mono.HealthCheckableModule{"static": staticHealth{healthy: true}},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	m := NewModule(Config{BaseURL: "http://shop.test"}, deps)
	m.actors = accounts
	return &testServer{app: m.newApp(), accounts: accounts, shop: shopSvc, repos: repos, media: files}
}

// signIn creates a user and returns its bearer token.
func (s *testServer) signIn(t *testing.T, username string, staff, superuser bool, perms ...string) string {
	t.Helper()
	ctx := context.Background()
	user, err := s.accounts.CreateUser(ctx, account.RegisterInput{Username: username, Password: "password123"}, staff, superuser)
	require.NoError(t, err)
	for _, perm := range perms {
		require.NoError(t, s.accounts.GrantPermissionUnchecked(ctx, user.ID, perm))
	}
	result, err := s.accounts.Login(ctx, username, "password123", "")
	require.NoError(t, err)
	return result.AccessToken
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(t *testing.T, method, path string, body any, token string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, path, field, filename string, data []byte, fields map[string]string, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHandlers_ChairScenario(t *testing.T) {
	s := setupServer(t)
	token := s.signIn(t, "alice", false, false)

	resp, body := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "Chair", "price": 49.99}, token))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, body = s.do(t, jsonRequest(t, "GET", "/shop/products/export/", nil, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"products":[{"pk":1,"name":"Chair","price":"49.99","archieved":false}]}`, string(body))
}

func TestHandlers_AnonymousCreateRedirects(t *testing.T) {
	s := setupServer(t)

	resp, _ := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "Chair", "price": 1}, ""))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/login/?next=%2Fshop%2Fproducts%2Fcreate%2F", resp.Header.Get("Location"))
}

func TestHandlers_ProductValidation(t *testing.T) {
	s := setupServer(t)
	token := s.signIn(t, "alice", false, false)

	resp, body := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "", "price": 1}, token))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"errors":{"name"`)

	resp, body = s.do(t, jsonRequest(t, "POST", "/api/products/", map[string]any{"name": "Chair", "price": 1, "discount": 101}, token))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"discount"`)

	resp, body = s.do(t, jsonRequest(t, "GET", "/api/products/", nil, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":0`)
}

func TestHandlers_ProductUpdateOwnership(t *testing.T) {
	s := setupServer(t)
	owner := s.signIn(t, "owner", false, false, "change_product")
	other := s.signIn(t, "other", false, false, "change_product")

	resp, _ := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "Lamp", "price": 10}, owner))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	update := map[string]any{"name": "Lamp v2", "price": 12}
	resp, _ = s.do(t, jsonRequest(t, "POST", "/shop/products/1/update/", update, other))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, jsonRequest(t, "POST", "/shop/products/1/update/", update, owner))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"Lamp v2"`)

	resp, _ = s.do(t, jsonRequest(t, "PUT", "/api/products/1/", update, other))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, jsonRequest(t, "GET", "/shop/products/99/", nil, ""))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandlers_ProductImagesAndArchive(t *testing.T) {
	s := setupServer(t)
	owner := s.signIn(t, "owner", false, false, "change_product")

	resp, _ := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "Desk", "price": 100}, owner))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	req := multipartRequest(t, "/shop/products/1/update/", "images", "desk.png", []byte("png"),
		map[string]string{"name": "Desk", "price": "120"}, owner)
	resp, body := s.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"images/1/desk.png"`)

	resp, _ = s.do(t, jsonRequest(t, "DELETE", "/api/products/1/", nil, owner))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, jsonRequest(t, "GET", "/shop/products/", nil, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":0`)

	resp, body = s.do(t, jsonRequest(t, "GET", "/shop/products/1/", nil, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"archieved":true`)
}

func TestHandlers_OrderFlow(t *testing.T) {
	s := setupServer(t)
	buyer := s.signIn(t, "buyer", false, false, "view_order")
	staff := s.signIn(t, "staff", true, false)

	for _, name := range []string{"Pen", "Ink"} {
		resp, _ := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": name, "price": 2}, buyer))
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	order := map[string]any{"delivery_address": "1 Main St", "promocode": "SALE", "products": []uint{1, 2}}
	resp, body := s.do(t, jsonRequest(t, "POST", "/shop/orders/create/", order, buyer))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, _ = s.do(t, jsonRequest(t, "GET", "/shop/orders/1/", nil, ""))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode, "anonymous order detail is redirected")
	assert.Equal(t, "/accounts/login/?next=%2Fshop%2Forders%2F1%2F", resp.Header.Get("Location"))

	resp, body = s.do(t, jsonRequest(t, "GET", "/shop/orders/1/", nil, buyer))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail struct {
		Products []uint `json:"products"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.ElementsMatch(t, []uint{1, 2}, detail.Products)

	resp, _ = s.do(t, jsonRequest(t, "GET", "/shop/orders/1/", nil, staff))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "staff without view_order")

	resp, _ = s.do(t, jsonRequest(t, "GET", "/shop/orders/export/", nil, buyer))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = s.do(t, jsonRequest(t, "GET", "/shop/orders/export/", nil, staff))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var export struct {
		Orders []map[string]any `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(body, &export))
	count, err := s.repos.Orders.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, count, len(export.Orders))

	resp, _ = s.do(t, jsonRequest(t, "GET", "/shop/users/99/orders/export/", nil, staff))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, jsonRequest(t, "POST", "/shop/orders/1/delete/", nil, buyer))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHandlers_UserDeleteProtectsOrders(t *testing.T) {
	s := setupServer(t)
	buyer := s.signIn(t, "buyer", false, false)
	admin := s.signIn(t, "admin", false, true)

	resp, _ := s.do(t, jsonRequest(t, "POST", "/shop/products/create/", map[string]any{"name": "Pen", "price": 2}, buyer))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = s.do(t, jsonRequest(t, "POST", "/api/orders/", map[string]any{"products": []uint{1}}, buyer))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = s.do(t, jsonRequest(t, "DELETE", "/accounts/users/1/", nil, buyer))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, jsonRequest(t, "DELETE", "/accounts/users/1/", nil, admin))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, string(body))
}

func TestHandlers_CSV(t *testing.T) {
	s := setupServer(t)
	token := s.signIn(t, "alice", false, false)

	csvData := "name,description,price,discount\nMug,Coffee mug,7.50,5\nCup,,3,0\n"
	resp, body := s.do(t, multipartRequest(t, "/api/products/upload_csv/", "file", "products.csv", []byte(csvData), nil, token))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, body = s.do(t, jsonRequest(t, "GET", "/api/products/download_csv/?ordering=price", nil, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), shop.CSVFilename)
	assert.Equal(t, "name,description,price,discount\nCup,,3.00,0\nMug,Coffee mug,7.50,5\n", string(body))

	resp, body = s.do(t, multipartRequest(t, "/api/products/upload_csv/", "file", "bad.csv", []byte("name,price\n,1\n"), nil, token))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"row 2: name"`)
}

func TestHandlers_Accounts(t *testing.T) {
	s := setupServer(t)

	resp, body := s.do(t, jsonRequest(t, "POST", "/accounts/register/", map[string]any{"username": "bob", "password": "password123"}, ""))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"access_token"`)

	resp, _ = s.do(t, jsonRequest(t, "POST", "/accounts/login/", map[string]any{"username": "bob", "password": "wrong-password"}, ""))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, jsonRequest(t, "POST", "/accounts/login/", map[string]any{"username": "bob", "password": "password123"}, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sid string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookie {
			sid = cookie.Value
		}
	}
	require.NotEmpty(t, sid)

	req := httptest.NewRequest("GET", "/accounts/about-me/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
	resp, body = s.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"username":"bob"`)

	resp, _ = s.do(t, httptest.NewRequest("GET", "/accounts/about-me/", nil))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp, body = s.do(t, jsonRequest(t, "POST", "/accounts/register/", map[string]any{"username": "bob", "password": "password123"}, ""))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"username"`)
	assert.NotContains(t, string(body), "password123")
}

func TestHandlers_ProfileAvatar(t *testing.T) {
	s := setupServer(t)
	bob := s.signIn(t, "bob", false, false)
	s.signIn(t, "eve", false, false)

	req := multipartRequest(t, "/accounts/users/2/update/", "avatar", "me.png", []byte("img"), map[string]string{"bio": "hi"}, bob)
	resp, _ := s.do(t, req)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Empty(t, s.media.objects, "nothing stored for a refused update")

	req = multipartRequest(t, "/accounts/users/1/update/", "avatar", "me.png", []byte("img"), map[string]string{"bio": "hi"}, bob)
	resp, body := s.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"avatar":"avatars/1/me.png"`)

	resp, body = s.do(t, httptest.NewRequest("GET", "/media/avatars/1/me.png", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "img", string(body))
}

func TestHandlers_CookiesAndSessions(t *testing.T) {
	s := setupServer(t)

	resp, _ := s.do(t, httptest.NewRequest("GET", "/accounts/cookies/set/", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	setCookie := resp.Header.Get("Set-Cookie")
	assert.Contains(t, setCookie, "foo=bar")
	assert.Contains(t, setCookie, "max-age=600")

	req := httptest.NewRequest("GET", "/accounts/cookies/get/", nil)
	req.AddCookie(&http.Cookie{Name: "foo", Value: "bar"})
	_, body := s.do(t, req)
	assert.JSONEq(t, `{"foo":"bar"}`, string(body))

	resp, _ = s.do(t, httptest.NewRequest("GET", "/accounts/sessions/set/", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sid string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookie {
			sid = cookie.Value
		}
	}
	require.NotEmpty(t, sid)

	req = httptest.NewRequest("GET", "/accounts/sessions/get/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
	_, body = s.do(t, req)
	assert.JSONEq(t, `{"foobar":"fizz buzz"}`, string(body))

	_, body = s.do(t, httptest.NewRequest("GET", "/accounts/sessions/get/", nil))
	assert.JSONEq(t, `{"foobar":null}`, string(body))

	_, body = s.do(t, httptest.NewRequest("GET", "/accounts/foobar/", nil))
	assert.JSONEq(t, `{"foo":"bar","spam":"eggs"}`, string(body))
}

func TestHandlers_RequestData(t *testing.T) {
	s := setupServer(t)

	_, body := s.do(t, httptest.NewRequest("GET", "/req/get/?a=1&b=2", nil))
	assert.JSONEq(t, `{"a":"1","b":"2","result":"12"}`, string(body))

	resp, body := s.do(t, multipartRequest(t, "/req/upload/", "myfile", "small.txt", []byte("hello"), nil, ""))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"uploads/1/small.txt"`)

	big := bytes.Repeat([]byte("x"), int(media.DefaultMaxUpload)+1)
	resp, _ = s.do(t, multipartRequest(t, "/req/upload/", "myfile", "big.bin", big, nil, ""))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	_, body = s.do(t, httptest.NewRequest("GET", "/api/hello/", nil))
	assert.JSONEq(t, `{"message":"Hello World!"}`, string(body))
}

func TestHandlers_BlogAndFeeds(t *testing.T) {
	s := setupServer(t)
	staff := s.signIn(t, "editor", true, false)
	user := s.signIn(t, "reader", false, false)

	article := map[string]any{"title": "Hello", "content": "First post", "author": "Ann", "category": "News", "tags": []string{"go"}}
	resp, _ := s.do(t, jsonRequest(t, "POST", "/blog/articles/", article, user))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, jsonRequest(t, "POST", "/blog/articles/", article, staff))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, body = s.do(t, httptest.NewRequest("GET", "/blog/articles/latest/feed/", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/rss+xml")
	assert.Contains(t, string(body), "http://shop.test/blog/articles/1/")

	resp, body = s.do(t, httptest.NewRequest("GET", "/shop/products/latest/feed/", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "<title>Latest products</title>"))
}

func TestHandlers_Throttle(t *testing.T) {
	cfg := throttle.DefaultConfig()
	cfg.Limit = 2
	mw := throttle.NewMiddleware(throttle.NewMemoryCounter(cfg.Limit, cfg.Window, nil), cfg)
	s := setupServer(t, func(d *Deps) { d.Throttle = mw })

	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, httptest.NewRequest("GET", "/api/hello/", nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, body := s.do(t, httptest.NewRequest("GET", "/api/hello/", nil))
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "You are refreshing the page too often!")

	resp, _ = s.do(t, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "health is never throttled")
}

func TestHandlers_Health(t *testing.T) {
	s := setupServer(t)
	resp, body := s.do(t, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)

	s = setupServer(t, func(d *Deps) {
		d.Health["broken"] = staticHealth{healthy: false}
	})
	resp, body = s.do(t, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"unhealthy"`)
}
