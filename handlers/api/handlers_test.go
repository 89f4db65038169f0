package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"docmail/config"
	"docmail/mailbox"
	"docmail/storage"
	"docmail/utils"
)

type testEnv struct {
	app      *fiber.App
	users    *storage.UserStorage
	messages *storage.MessageStorage
	auth     *AuthHandler
}

func newTestEnv(t *testing.T, dial mailbox.DialFunc) *testEnv {
	t.Helper()

	db, err := storage.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.IMAP.Server = "imap.example.com"
	cfg.IMAP.Port = 993
	cfg.IMAP.Folder = "INBOX"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.ExpiryMinutes = 30
	cfg.Encryption.Key = "0123456789abcdef0123456789abcdef"

	users := storage.NewUserStorage(db, []byte(cfg.Encryption.Key))
	messages := storage.NewMessageStorage(db, 0)

	if dial == nil {
		dial = func(address, password string) (mailbox.Session, error) {
			return nil, utils.ConnectionError("no mail store in this test", nil)
		}
	}
	fetcher := mailbox.NewFetcher(dial, cfg.IMAP.Folder, 20)

	authHandler := NewAuthHandler(cfg, users)
	authHandler.probe = func(address, password string) error { return nil }
	emailHandler := NewEmailHandler(fetcher, messages)

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	routes := app.Group("/api")
	routes.Post("/register", authHandler.HandleRegister)
	routes.Post("/login", authHandler.HandleLogin)
	routes.Post("/logout", authHandler.HandleLogout)

	protected := routes.Group("", RequireAuth(users, cfg.JWT.Secret))
	protected.Get("/emails", emailHandler.HandleInbox)
	protected.Get("/emails/:id/attachments/:filename", emailHandler.HandleDownloadAttachment)
	protected.Get("/user/profile", emailHandler.HandleProfile)

	return &testEnv{app: app, users: users, messages: messages, auth: authHandler}
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := utils.KindInternal

	var appErr *utils.AppError
	var fiberErr *fiber.Error
	if errors.As(err, &appErr) {
		code = appErr.Code
		kind = appErr.Kind
	} else if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}

func (env *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (env *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func (env *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	resp := env.postJSON(t, "/api/register", fiber.Map{"email": email, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register returned %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func (env *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := env.postJSON(t, "/api/login", fiber.Map{"email": email, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, resp, &body)
	if body.TokenType != "bearer" {
		t.Fatalf("token_type = %q, want bearer", body.TokenType)
	}
	if body.AccessToken == "" {
		t.Fatal("login returned an empty token")
	}
	return body.AccessToken
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return data
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}
