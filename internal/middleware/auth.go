package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/models"
)

const (
	CtxUserID      = "user_id"
	CtxUserLayerID = "user_layer_id"
	CtxLayerID     = "layer_id"
)

// SessionReader exposes the current wallet session.
type SessionReader interface {
	Session() models.Session
}

// RequireSession rejects requests while no wallet session is authenticated.
func RequireSession(sessions SessionReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := sessions.Session()
		if !sess.Authenticated || sess.User == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "connect a wallet first"})
		}

		c.Locals(CtxUserID, sess.User.ID)
		if sess.CurrentUserLayer != nil {
			c.Locals(CtxUserLayerID, sess.CurrentUserLayer.ID)
		}
		if sess.CurrentLayer != nil {
			c.Locals(CtxLayerID, sess.CurrentLayer.ID)
		}
		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxUserID).(string)
	return id
}

func GetUserLayerID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxUserLayerID).(string)
	return id
}

func GetLayerID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxLayerID).(string)
	return id
}
