package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
)

// BearerAuth rejects requests whose Authorization header does not carry
// "Bearer <token>" with 403. Paths in public are let through.
func BearerAuth(token string, public ...string) fiber.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return keyauth.New(keyauth.Config{
		Next: func(c *fiber.Ctx) bool {
			return open[c.Path()]
		},
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return c.Status(fiber.StatusForbidden).JSON(errorBody{Error: "forbidden"})
		},
	})
}
