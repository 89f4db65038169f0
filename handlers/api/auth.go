// handlers/api/auth.go
package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docmail/config"
	"docmail/mailbox"
	"docmail/storage"
	"docmail/utils"
)

// Prober verifies mailbox credentials by opening a live session and
// selecting the inbox folder.
type Prober func(address, password string) error

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	config *config.Config
	users  *storage.UserStorage
	probe  Prober
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(cfg *config.Config, users *storage.UserStorage) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		users:  users,
		probe: func(address, password string) error {
			client, err := mailbox.Dial(cfg.IMAP.Server, cfg.IMAP.Port, address, password)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Probe(cfg.IMAP.Folder)
		},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister registers a user. The supplied credentials must open and
// select a live mailbox before anything is persisted; a failed probe leaves
// no identity record behind.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.CredentialError("invalid request body", err)
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return utils.CredentialError("email and password are required", nil)
	}

	if _, err := h.users.GetUserByEmail(req.Email); err == nil {
		return utils.CredentialError("email already registered", nil)
	}

	if err := h.probe(req.Email, req.Password); err != nil {
		return utils.CredentialError("email connection error", err)
	}

	if _, err := h.users.CreateUser(req.Email, req.Password); err != nil {
		return err
	}

	utils.Log.Info("registered user %s", req.Email)
	return c.JSON(fiber.Map{"message": "User registered successfully"})
}

// HandleLogin verifies the login password and issues a bearer token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.CredentialError("invalid request body", err)
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := h.users.VerifyPassword(req.Email, req.Password); err != nil {
		return utils.AuthError("incorrect email or password", nil)
	}

	token, err := GenerateToken(req.Email, h.config.JWT.Secret, h.config.JWT.Expiry())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// HandleLogout acknowledges logout. Tokens are stateless and simply expire;
// the client discards its copy.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}
