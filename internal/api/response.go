package api

import "github.com/gofiber/fiber/v3"

// SemanticResponse is the envelope every endpoint answers with.
type SemanticResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const (
	MessageOK                  = "ok"
	MessageCreated             = "created"
	MessageBadRequest          = "bad request"
	MessageNotFound            = "not found"
	MessageConflict            = "conflict"
	MessageBadGateway          = "bad gateway"
	MessageInternalServerError = "internal server error"
)

func success(c fiber.Ctx, status int, data any) error {
	msg := MessageOK
	if status == fiber.StatusCreated {
		msg = MessageCreated
	}
	return c.Status(status).JSON(SemanticResponse{Status: status, Message: msg, Data: data})
}

func fail(c fiber.Ctx, status int, message string) error {
	if message == "" {
		message = defaultMessage(status)
	}
	return c.Status(status).JSON(SemanticResponse{Status: status, Message: message})
}

func defaultMessage(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return MessageBadRequest
	case fiber.StatusNotFound:
		return MessageNotFound
	case fiber.StatusConflict:
		return MessageConflict
	case fiber.StatusBadGateway:
		return MessageBadGateway
	default:
		return MessageInternalServerError
	}
}
