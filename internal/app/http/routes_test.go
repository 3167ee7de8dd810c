package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"costume-rental/database"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/domain/users"
	"costume-rental/internal/infra/imagestore"
	"costume-rental/internal/infra/security"
	"costume-rental/internal/infra/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (m *memRevocations) Revoke(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memRevocations) Claim(_ context.Context, jti string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revoked[jti] {
		return false, nil
	}
	m.revoked[jti] = true
	return true, nil
}

func (m *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

type testServer struct {
	r    *gin.Engine
	db   *gorm.DB
	root string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	root := t.TempDir()
	backend, err := imagestore.NewLocalBackend(root)
	require.NoError(t, err)
	store := imagestore.New(imagestore.Options{URLPrefix: "/uploads", MaxBytes: 1 << 20}, backend, &imagestore.FFmpegAVIF{}, log)

	validate := validation.New()
	userSvc := users.NewService(db, validate, log)
	_, err = userSvc.EnsureSuperAdmin(context.Background(), "root@example.com", "root", "Secret123")
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, Deps{
		APIPrefix:      "/api/v1",
		DB:             db,
		Users:          userSvc,
		Costumes:       costumes.NewService(db, store, validate, log),
		Tokens:         security.NewTokenService("test-secret", 15*time.Minute, time.Hour),
		Revocations:    &memRevocations{revoked: map[string]bool{}},
		MaxUploadBytes: 1 << 20,
		Log:            log,
		UploadsPrefix:  "/uploads",
		UploadsDir:     root,
	})
	return testServer{r: r, db: db, root: root}
}

func (s testServer) do(t *testing.T, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s testServer) json(t *testing.T, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, body, "application/json", token)
}

func (s testServer) login(t *testing.T, identifier, password string) (access, refresh string) {
	t.Helper()
	w := s.json(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": identifier, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["access_token"].(string), resp["refresh_token"].(string)
}

func (s testServer) register(t *testing.T, username string) (id int, access string) {
	t.Helper()
	w := s.json(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "Secret123",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	return int(resp["id"].(float64)), resp["access_token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func jpegFile(t *testing.T, name string) formFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return formFile{field: "images", name: name, contentType: "image/jpeg", data: buf.Bytes()}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.json(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "jane@example.com",
		"username": "jane",
		"password": "Secret123",
		"role":     "super_admin",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode(t, w)
	assert.Equal(t, "user", reg["role"], "registration cannot pick a role")
	assert.Equal(t, "bearer", reg["token_type"])
	assert.NotContains(t, reg, "hashed_password")

	w = s.json(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "jane@example.com", "username": "jane2", "password": "Secret123",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	access, refresh := s.login(t, "jane", "Secret123")

	w = s.json(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "jane@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, "", access)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane", decode(t, w)["username"])

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, "", refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are not access tokens")

	w = s.json(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode(t, w)["refresh_token"].(string)

	w = s.json(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a used refresh token is revoked")

	w = s.json(t, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": rotated}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.json(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": rotated}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.json(t, http.MethodPost, "/api/v1/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "logout without a token is stateless")
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "jane")
	_, refresh := s.login(t, "jane", "Secret123")
	body := fmt.Sprintf(`{"refresh_token":%q}`, refresh)

	codes := make([]int, 6)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.r.ServeHTTP(w, req)
			codes[i] = w.Code
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusUnauthorized:
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, len(codes)-1, rejected)
}

func TestGuards(t *testing.T) {
	s := newTestServer(t)
	_, userToken := s.register(t, "alice")

	w := s.do(t, http.MethodGet, "/api/v1/admin/costumes", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/costumes", nil, "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/costumes", nil, "", userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "cannot_manage", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/users", nil, "", userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserVisibilityAndSelfDelete(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.register(t, "alice")
	bobID, _ := s.register(t, "bob")
	root, _ := s.login(t, "root", "Secret123")

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", bobID), nil, "", alice)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", aliceID), nil, "", alice)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.json(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d", aliceID), map[string]string{"full_name": "<b>Alice</b> Liddell"}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice Liddell", decode(t, w)["full_name"], "markup is stripped from JSON input")

	w = s.do(t, http.MethodGet, "/api/v1/users?limit=10", nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 3)

	w = s.do(t, http.MethodGet, "/api/v1/users?limit=0", nil, "", root)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/search?query=LIDDELL", nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	found := decodeList(t, w)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0]["username"])

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", aliceID), nil, "", alice)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, "", alice)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a deleted user's token stops working")
}

func TestAdminUserManagement(t *testing.T) {
	s := newTestServer(t)
	aliceID, _ := s.register(t, "alice")
	root, _ := s.login(t, "root", "Secret123")

	w := s.json(t, http.MethodPost, "/api/v1/admin/users", map[string]string{
		"email": "carol@example.com", "username": "carol", "password": "Secret123", "role": "admin",
	}, root)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	carolID := int(decode(t, w)["id"].(float64))
	carol, _ := s.login(t, "carol", "Secret123")

	w = s.json(t, http.MethodPost, "/api/v1/admin/users", map[string]string{
		"email": "dave@example.com", "username": "dave", "password": "Secret123", "role": "super_admin",
	}, carol)
	assert.Equal(t, http.StatusForbidden, w.Code, "admins cannot mint super admins")

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/role?role=admin", aliceID), nil, "", carol)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "admin", decode(t, w)["role"])

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/role?role=wizard", aliceID), nil, "", carol)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/deactivate", carolID), nil, "", carol)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "self_action", decode(t, w)["code"])

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/verify", aliceID), nil, "", carol)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_verified"])

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/deactivate", aliceID), nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = s.json(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "Secret123"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/activate", aliceID), nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", carolID), nil, "", carol)
	assert.Equal(t, http.StatusBadRequest, w.Code, "admins cannot delete themselves here")

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 3, stats["total_users"])
	assert.EqualValues(t, 0, stats["total_costumes"])
}

func TestCostumeCatalogFlow(t *testing.T) {
	s := newTestServer(t)
	root, _ := s.login(t, "root", "Secret123")

	body, ct := multipartBody(t, map[string]string{
		"name":   "Witch",
		"amount": "2",
		"price":  "19.5",
		"gender": "female",
		"tags":   "Halloween, Scary",
	}, jpegFile(t, "witch.jpg"))
	w := s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := int(created["id"].(float64))
	assert.Equal(t, []any{"Halloween", "Scary"}, created["tags"])
	images := created["images"].([]any)
	require.Len(t, images, 1)
	hash := images[0].(map[string]any)["hash"].(string)
	urls := created["image_urls"].([]any)
	require.Len(t, urls, 1)
	assert.Equal(t, "/uploads/"+hash+"/witch_thumb.webp", urls[0].(map[string]any)["variants"].(map[string]any)["thumb"].(map[string]any)["webp"])

	w = s.do(t, http.MethodGet, "/api/v1/costumes", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeList(t, w)
	require.Len(t, list, 1)
	thumb := list[0]["thumbnail"].(string)
	assert.Equal(t, "/uploads/"+hash+"/witch_thumb.webp", thumb)
	assert.NotContains(t, list[0], "amount")

	w = s.do(t, http.MethodGet, thumb, nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code, "variants are served from the uploads prefix")

	w = s.do(t, http.MethodGet, "/api/v1/costumes?gender=male", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/costumes/%d", id), nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	variants := detail["images"].([]any)[0].(map[string]any)["variants"].(map[string]any)
	assert.Contains(t, variants, "thumb")
	assert.Contains(t, variants, "large")

	form := func(v string) (io.Reader, string) {
		return strings.NewReader("delta=" + v), "application/x-www-form-urlencoded"
	}
	b, c := form("-5")
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/costumes/%d/amount", id), b, c, root)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "negative_inventory", decode(t, w)["code"])

	b, c = form("-2")
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/costumes/%d/amount", id), b, c, root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["amount"])

	body, ct = multipartBody(t, map[string]string{"amount": "50"})
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/costumes/%d", id), body, ct, root)
	assert.Equal(t, http.StatusBadRequest, w.Code, "stock only moves by delta")

	body, ct = multipartBody(t, map[string]string{"is_active": "false", "price": ""})
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/costumes/%d", id), body, ct, root)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)
	assert.Nil(t, updated["price"], "a blank price clears it")
	assert.Equal(t, false, updated["is_active"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/costumes/%d", id), nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "inactive costumes are hidden from the public")

	w = s.do(t, http.MethodGet, "/api/v1/costumes/search?q=witch", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/admin/costumes/search/all?q=witch", nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/admin/costumes?is_active=false", nil, "", root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/costumes/%d", id), nil, "", root)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/costumes/%d", id), nil, "", root)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, thumb, nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "image files go with the costume")
}

func TestCostumeInputErrors(t *testing.T) {
	s := newTestServer(t)
	root, _ := s.login(t, "root", "Secret123")

	body, ct := multipartBody(t, map[string]string{"name": "Ghost"},
		formFile{field: "images", name: "notes.txt", contentType: "text/plain", data: []byte("boo")})
	w := s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_media_type", decode(t, w)["code"])

	body, ct = multipartBody(t, map[string]string{"amount": "3"})
	w = s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is required")

	body, ct = multipartBody(t, map[string]string{"name": "Ghost", "related_costumes": "1,two"})
	w = s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"name": "Ghost"})
	w = s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ghost := decode(t, w)
	assert.EqualValues(t, 1, ghost["amount"], "amount defaults to one")
	assert.Equal(t, "unisex", ghost["gender"])
	assert.Equal(t, "universal", ghost["age_category"])

	body, ct = multipartBody(t, map[string]string{"name": "Ghost"})
	w = s.do(t, http.MethodPost, "/api/v1/admin/costumes", body, ct, root)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/costumes?gender=alien", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/costumes/search", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/costumes/999/related", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/costumes/abc", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
