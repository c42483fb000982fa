package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
	"github.com/ragswitch/ragswitch/internal/service"
)

// AIHandler exposes the chat surface.
type AIHandler struct {
	ai *service.AIService
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(ai *service.AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

// Register sets up chat routes.
func (h *AIHandler) Register(router fiber.Router) {
	ai := router.Group("/ai")
	ai.Post("/generate", h.Generate)
	ai.Post("/generate_stream", h.GenerateStream)
	ai.Post("/generate_stream_rag", h.GenerateStreamRag)
}

type generateRequest struct {
	Model   string   `json:"model"`
	Message string   `json:"message"`
	Tags    []string `json:"tags"`
}

// Generate waits for the complete response.
func (h *AIHandler) Generate(c fiber.Ctx) error {
	var body generateRequest
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	answer, err := h.ai.Generate(c.Context(), body.Model, body.Message)
	if err != nil {
		return aiError(c, err)
	}
	return ok(c, "query successful", fiber.Map{"content": answer})
}

// GenerateStream streams the response as Server-Sent Events.
func (h *AIHandler) GenerateStream(c fiber.Ctx) error {
	var body generateRequest
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	stream, err := h.ai.GenerateStream(context.WithoutCancel(c.Context()), body.Model, body.Message)
	if err != nil {
		return aiError(c, err)
	}
	return sendSSE(c, stream)
}

// GenerateStreamRag streams a retrieval-augmented response. An empty tag
// list behaves exactly like GenerateStream.
func (h *AIHandler) GenerateStreamRag(c fiber.Ctx) error {
	var body generateRequest
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	stream, err := h.ai.GenerateStreamRag(context.WithoutCancel(c.Context()), body.Model, body.Tags, body.Message)
	if err != nil {
		return aiError(c, err)
	}
	return sendSSE(c, stream)
}

// sendSSE forwards stream chunks as SSE. A provider failure mid-stream is
// emitted as an error event, never a silently truncated stream.
func sendSSE(c fiber.Ctx, stream <-chan domain.StreamChunk) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		for chunk := range stream {
			if chunk.Err != nil {
				slog.Error("stream failed", "error", chunk.Err)
				data, _ := json.Marshal(fiber.Map{"error": chunk.Err.Error()})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
				w.Flush()
				return
			}
			data, _ := json.Marshal(fiber.Map{"content": chunk.Content})
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()
		}
		fmt.Fprint(w, "event: done\ndata: {}\n\n")
		w.Flush()
	})
}

// aiError maps configuration-resolution failures onto response codes.
func aiError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrNoActiveConfig):
		return fail(c, fiber.StatusConflict, codeRefused, "no active model configuration, add and activate one first")
	case errors.Is(err, port.ErrConfigNotFound):
		return fail(c, fiber.StatusNotFound, codeNotFound, "active configuration no longer exists")
	case errors.Is(err, port.ErrUnsupportedProvider):
		return fail(c, fiber.StatusBadRequest, codeInvalid, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, codeError, err.Error())
	}
}
