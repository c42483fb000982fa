package handler

import "github.com/gofiber/fiber/v3"

// Response is the envelope every endpoint returns.
type Response struct {
	Code string      `json:"code"`
	Info string      `json:"info"`
	Data interface{} `json:"data,omitempty"`
}

// Response codes.
const (
	codeOK                = "0000"
	codeInvalid           = "400"
	codeRefused           = "4003"
	codeNotFound          = "4004"
	codeError             = "500"
	codeAllProbesFailed   = "5001"
	codeDimensionMismatch = "DIMENSION_MISMATCH"
)

func ok(c fiber.Ctx, info string, data interface{}) error {
	return c.JSON(Response{Code: codeOK, Info: info, Data: data})
}

func fail(c fiber.Ctx, status int, code, info string) error {
	return c.Status(status).JSON(Response{Code: code, Info: info})
}
