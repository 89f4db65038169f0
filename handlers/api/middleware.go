package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docmail/models"
	"docmail/storage"
	"docmail/utils"
)

// RequireAuth validates the bearer token and loads the current user into the
// request context.
func RequireAuth(users *storage.UserStorage, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return utils.AuthError("missing bearer token", nil)
		}

		email, err := ValidateToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			return err
		}

		user, err := users.GetUserByEmail(email)
		if err != nil {
			return utils.AuthError("could not validate credentials", err)
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// CurrentUser returns the identity resolved by RequireAuth.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return nil, utils.AuthError("not authenticated", nil)
	}
	return user, nil
}
