package middleware

import (
	"errors"
	"strings"

	"privmsg/models"
	"privmsg/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const tokenCookie = "access_token"

var (
	errNoToken        = errors.New("Authorization required")
	errBadAuthzHeader = errors.New("Invalid authorization format")
)

// Protected requires a valid access token issued by the host application and
// stores the active user under the "user" local.
func Protected(db *gorm.DB, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := accessToken(c)
		if err != nil {
			return deny(c, fiber.StatusUnauthorized, err.Error())
		}

		claims, err := utils.ParseJWTToken(token, secret)
		if err != nil {
			return deny(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			return deny(c, fiber.StatusUnauthorized, "User not found")
		}
		if !user.IsActive {
			return deny(c, fiber.StatusForbidden, "Account is not active")
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// accessToken reads the bearer token, falling back to the cookie and then
// the query string, which browsers use for websocket upgrades.
func accessToken(c *fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return "", errBadAuthzHeader
		}
		return token, nil
	}

	if token := c.Cookies(tokenCookie); token != "" {
		return token, nil
	}
	if token := c.Query(tokenCookie); token != "" {
		return token, nil
	}
	return "", errNoToken
}

func deny(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
