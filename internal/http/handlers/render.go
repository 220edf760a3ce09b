package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "auctionsearch/internal/log"
)

const genericError = "Something went wrong. Please try again."

func renderError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// ErrorHandler logs the failure and answers with a JSON body that carries
// no internal detail. Client errors raised as *fiber.Error keep their code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
		return renderError(c, code, genericError)
	}
	return renderError(c, code, fe.Message)
}
