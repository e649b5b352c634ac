package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ads-users/internal/api/dto"
	"github.com/spec-kit/ads-users/internal/api/http/handlers"
	"github.com/spec-kit/ads-users/internal/auth"
	"github.com/spec-kit/ads-users/internal/config"
	"github.com/spec-kit/ads-users/internal/domain"
	"github.com/spec-kit/ads-users/internal/events"
	"github.com/spec-kit/ads-users/internal/observability"
	"github.com/spec-kit/ads-users/internal/persistence"
	"github.com/spec-kit/ads-users/internal/repository"
	"github.com/spec-kit/ads-users/internal/service"
)

const adaBody = `{"first_name":"Ada","last_name":"Lovelace","username":"ada","role":"admin","age":30,"locations":[1,2]}`

type testServer struct {
	app    *fiber.App
	db     *sql.DB
	tokens *auth.TokenManager
	admin  string
}

func newTestServer(t *testing.T, authEnabled bool) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, db, zap.NewNop()))
	for _, name := range []string{"Moscow", "Kazan", "Omsk"} {
		_, err := db.Exec(`INSERT INTO locations (name) VALUES (?)`, name)
		require.NoError(t, err)
	}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	users := service.NewUserService(config.PaginationConfig{TotalOnPage: 2}, service.UserDependencies{
		UserRepo:   repository.NewUserSQLiteRepository(db),
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Logger:     logger,
	})
	tokens := auth.NewTokenManager("test-secret", 5*time.Minute)

	app := fiber.New(fiber.Config{StrictRouting: false})
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ads-users", "test", map[string]handlers.Pinger{"sqlite": &persistence.SQLite{DB: db}}, metrics),
		Users:          handlers.NewUsersHandler(users),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		AuthEnabled:    authEnabled,
	})

	admin, _, err := tokens.GenerateToken(1000, "root", domain.RoleAdmin)
	require.NoError(t, err)
	return &testServer{app: app, db: db, tokens: tokens, admin: admin}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decodeUser(t *testing.T, raw []byte) dto.UserResponse {
	t.Helper()
	var out dto.UserResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func decodeError(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out.Error
}

func TestUsersAPI_Lifecycle(t *testing.T) {
	s := newTestServer(t, true)

	status, raw := s.do(t, fiber.MethodPost, "/users/create/", adaBody, s.admin)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	created := decodeUser(t, raw)
	assert.Equal(t, "ada", created.Username)
	assert.Equal(t, []string{"Moscow", "Kazan"}, created.Locations)
	assert.Equal(t, 0, created.TotalAds)

	_, err := s.db.Exec(`INSERT INTO ads (name, author_id, is_published) VALUES ('a', ?, 1), ('b', ?, 1), ('c', ?, 0)`,
		created.ID, created.ID, created.ID)
	require.NoError(t, err)

	status, raw = s.do(t, fiber.MethodGet, "/users/"+itoa(created.ID)+"/", "", "")
	require.Equal(t, fiber.StatusOK, status)
	got := decodeUser(t, raw)
	assert.Equal(t, dto.UserResponse{
		ID: created.ID, FirstName: "Ada", LastName: "Lovelace", Username: "ada",
		Role: "admin", Age: 30, Locations: []string{"Moscow", "Kazan"}, TotalAds: 2,
	}, got)

	update := `{"first_name":"Ada","last_name":"King","username":"ada","role":"seller","age":36,"locations":[3]}`
	status, raw = s.do(t, fiber.MethodPatch, "/users/"+itoa(created.ID)+"/update", update, s.admin)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	updated := decodeUser(t, raw)
	assert.Equal(t, "King", updated.LastName)
	assert.Equal(t, "seller", updated.Role)
	assert.Equal(t, 36, updated.Age)
	assert.Equal(t, []string{"Omsk"}, updated.Locations)
	assert.Equal(t, 2, updated.TotalAds)

	status, raw = s.do(t, fiber.MethodDelete, "/users/"+itoa(created.ID)+"/delete/", "", s.admin)
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Empty(t, raw)

	status, raw = s.do(t, fiber.MethodGet, "/users/"+itoa(created.ID)+"/", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decodeError(t, raw)["code"])
}

func TestUsersAPI_ListPaging(t *testing.T) {
	s := newTestServer(t, false)
	for _, name := range []string{"carol", "alice", "bob"} {
		body := strings.Replace(adaBody, `"username":"ada"`, `"username":"`+name+`"`, 1)
		status, raw := s.do(t, fiber.MethodPost, "/users/create", body, "")
		require.Equal(t, fiber.StatusOK, status, string(raw))
	}

	cases := map[string]struct {
		page  int
		names []string
	}{
		"/users/":         {1, []string{"alice", "bob"}},
		"/users":          {1, []string{"alice", "bob"}},
		"/users/?page=2":  {2, []string{"carol"}},
		"/users/?page=ab": {1, []string{"alice", "bob"}},
		"/users/?page=0":  {2, []string{"carol"}},
		"/users/?page=99": {2, []string{"carol"}},
	}
	for path, want := range cases {
		status, raw := s.do(t, fiber.MethodGet, path, "", "")
		require.Equal(t, fiber.StatusOK, status, path)
		var page dto.UserListResponse
		require.NoError(t, json.Unmarshal(raw, &page))
		assert.Equal(t, want.page, page.Page, path)
		assert.Equal(t, 2, page.NumPages, path)
		assert.Equal(t, 3, page.Total, path)
		names := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			names = append(names, item.Username)
		}
		assert.Equal(t, want.names, names, path)
	}
}

func TestUsersAPI_EmptyList(t *testing.T) {
	s := newTestServer(t, false)

	status, raw := s.do(t, fiber.MethodGet, "/users/", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"items":[],"page":1,"num_pages":1,"total":0}`, string(raw))
}

func TestUsersAPI_BadIDsAreNotFound(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/users/abc/", "/users/0/", "/users/-3/", "/users/42/"} {
		status, raw := s.do(t, fiber.MethodGet, path, "", "")
		assert.Equal(t, fiber.StatusNotFound, status, path)
		assert.Equal(t, "NOT_FOUND", decodeError(t, raw)["code"], path)
	}

	status, _ := s.do(t, fiber.MethodDelete, "/users/42/delete/", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = s.do(t, fiber.MethodPatch, "/users/42/update/", adaBody, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestUsersAPI_ValidationFailures(t *testing.T) {
	s := newTestServer(t, false)

	cases := map[string]struct {
		body  string
		field string
	}{
		"missing age":      {`{"first_name":"A","last_name":"B","username":"a","role":"buyer","locations":[]}`, "age"},
		"unknown role":     {strings.Replace(adaBody, `"admin"`, `"owner"`, 1), "role"},
		"negative age":     {strings.Replace(adaBody, `"age":30`, `"age":-1`, 1), "age"},
		"empty username":   {strings.Replace(adaBody, `"username":"ada"`, `"username":""`, 1), "username"},
		"long username":    {strings.Replace(adaBody, `"username":"ada"`, `"username":"abcdefghijklmnopqrstu"`, 1), "username"},
		"zero location":    {strings.Replace(adaBody, `[1,2]`, `[0]`, 1), "locations"},
		"locations absent": {`{"first_name":"A","last_name":"B","username":"a","role":"buyer","age":1}`, "locations"},
		"unknown location": {strings.Replace(adaBody, `[1,2]`, `[1,77]`, 1), "locations"},
	}
	for name, tc := range cases {
		status, raw := s.do(t, fiber.MethodPost, "/users/create/", tc.body, "")
		require.Equal(t, fiber.StatusBadRequest, status, name)
		errBody := decodeError(t, raw)
		assert.Equal(t, "VALIDATION_FAILED", errBody["code"], name)
		details, ok := errBody["details"].(map[string]any)
		require.True(t, ok, name)
		assert.Contains(t, details, tc.field, name)
	}

	status, raw := s.do(t, fiber.MethodPost, "/users/create/", `{"first_name":`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, raw)["code"])

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Zero(t, count)
}

func TestUsersAPI_DuplicateUsername(t *testing.T) {
	s := newTestServer(t, false)

	status, _ := s.do(t, fiber.MethodPost, "/users/create/", adaBody, "")
	require.Equal(t, fiber.StatusOK, status)

	status, raw := s.do(t, fiber.MethodPost, "/users/create/", adaBody, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", decodeError(t, raw)["code"])
}

func TestUsersAPI_WriteGuards(t *testing.T) {
	s := newTestServer(t, true)

	status, _ := s.do(t, fiber.MethodPost, "/users/create/", adaBody, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do(t, fiber.MethodPost, "/users/create/", adaBody, "not-a-token")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	buyerBody := strings.Replace(adaBody, `"admin"`, `"buyer"`, 1)
	status, raw := s.do(t, fiber.MethodPost, "/users/create/", buyerBody, s.admin)
	require.Equal(t, fiber.StatusOK, status)
	ada := decodeUser(t, raw)

	buyer, _, err := s.tokens.GenerateToken(ada.ID, "ada", domain.RoleBuyer)
	require.NoError(t, err)
	stranger, _, err := s.tokens.GenerateToken(ada.ID+1, "eve", domain.RoleBuyer)
	require.NoError(t, err)

	status, _ = s.do(t, fiber.MethodPost, "/users/create/", strings.Replace(adaBody, `"ada"`, `"eve"`, 1), buyer)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodDelete, "/users/"+itoa(ada.ID)+"/delete/", "", buyer)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodPatch, "/users/"+itoa(ada.ID)+"/update/", buyerBody, stranger)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodPatch, "/users/"+itoa(ada.ID)+"/update/", adaBody, buyer)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodPatch, "/users/"+itoa(ada.ID)+"/update/", buyerBody, buyer)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, fiber.MethodGet, "/users/"+itoa(ada.ID)+"/", "", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	status, raw := s.do(t, fiber.MethodGet, "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"alive"`)

	status, raw = s.do(t, fiber.MethodGet, "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"sqlite":"ok"`)

	s.do(t, fiber.MethodGet, "/users/abc/", "", "")

	status, raw = s.do(t, fiber.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, status)
	var snap observability.MetricsSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, int64(1), countMatching(snap.Requests, ":id", "|GET|404"))
	assert.Equal(t, int64(1), countMatching(snap.Errors, ":id", "|GET|NOT_FOUND"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(fiber.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, err = s.app.Test(httptest.NewRequest(fiber.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func countMatching(counters map[string]int64, route, suffix string) int64 {
	var total int64
	for key, n := range counters {
		if strings.Contains(key, route) && strings.HasSuffix(key, suffix) {
			total += n
		}
	}
	return total
}

func TestUsersAPI_BodyIsJSONWhateverTheContentType(t *testing.T) {
	s := newTestServer(t, false)

	for i, contentType := range []string{"", "text/plain", fiber.MIMEApplicationForm} {
		body := strings.Replace(adaBody, `"username":"ada"`, `"username":"ada`+strconv.Itoa(i)+`"`, 1)
		req := httptest.NewRequest(fiber.MethodPost, "/users/create/", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set(fiber.HeaderContentType, contentType)
		}
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "%q: %s", contentType, raw)
		assert.Equal(t, "ada"+strconv.Itoa(i), decodeUser(t, raw).Username)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/users/create/", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodPost, "/users/create/", strings.NewReader("first_name=Ada"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"body": "malformed JSON"}, decodeError(t, raw)["details"])
}
