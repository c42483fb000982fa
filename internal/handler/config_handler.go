package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
	"github.com/ragswitch/ragswitch/internal/service"
)

// ConfigHandler exposes provider configuration management.
type ConfigHandler struct {
	configs *service.ConfigService
}

// NewConfigHandler creates a new configuration handler.
func NewConfigHandler(configs *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{configs: configs}
}

// Register sets up configuration routes.
func (h *ConfigHandler) Register(router fiber.Router) {
	cfg := router.Group("/configs")
	cfg.Get("/", h.List)
	cfg.Post("/", h.Create)
	cfg.Post("/test", h.TestConnection)
	cfg.Get("/active", h.GetActive)
	cfg.Get("/active/embedding", h.GetActiveEmbedding)
	cfg.Get("/:id", h.Get)
	cfg.Put("/:id", h.Update)
	cfg.Delete("/:id", h.Delete)
	cfg.Post("/:id/activate", h.Activate)
	cfg.Post("/:id/activate-embedding", h.ActivateEmbedding)
}

// List returns all configurations with derived activation flags.
func (h *ConfigHandler) List(c fiber.Ctx) error {
	configs, err := h.configs.List(c.Context())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "list configurations: "+err.Error())
	}
	return ok(c, "query successful", configs)
}

// Get returns one configuration.
func (h *ConfigHandler) Get(c fiber.Ctx) error {
	cfg, err := h.configs.Get(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrConfigNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "configuration not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, err.Error())
	}
	return ok(c, "query successful", cfg)
}

// Create persists a new configuration and returns it with its assigned id.
func (h *ConfigHandler) Create(c fiber.Ctx) error {
	var cfg domain.ProviderConfig
	if err := c.Bind().JSON(&cfg); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	created, err := h.configs.Create(c.Context(), &cfg)
	if errors.Is(err, port.ErrInvalidEmbeddingConfig) {
		return fail(c, fiber.StatusBadRequest, codeInvalid, err.Error())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "create configuration: "+err.Error())
	}
	return ok(c, "created", created)
}

// Update replaces a configuration.
func (h *ConfigHandler) Update(c fiber.Ctx) error {
	var cfg domain.ProviderConfig
	if err := c.Bind().JSON(&cfg); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	updated, err := h.configs.Update(c.Context(), c.Params("id"), &cfg)
	if errors.Is(err, port.ErrConfigNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "configuration not found")
	}
	if errors.Is(err, port.ErrInvalidEmbeddingConfig) {
		return fail(c, fiber.StatusBadRequest, codeInvalid, err.Error())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "update configuration: "+err.Error())
	}
	return ok(c, "updated", updated)
}

// Delete removes a configuration; the active chat or embedding configuration
// is refused.
func (h *ConfigHandler) Delete(c fiber.Ctx) error {
	err := h.configs.Delete(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrConfigNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "configuration not found")
	}
	if err != nil && strings.Contains(err.Error(), "is the active") {
		return fail(c, fiber.StatusConflict, codeRefused, err.Error())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "delete configuration: "+err.Error())
	}
	return ok(c, "deleted", true)
}

// Activate makes a configuration the active chat configuration.
func (h *ConfigHandler) Activate(c fiber.Ctx) error {
	err := h.configs.Activate(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrConfigNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "configuration not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "activate configuration: "+err.Error())
	}
	return ok(c, "activated", true)
}

// ActivateEmbedding runs the dimension-safe embedding activation. On a
// dimension conflict without force, the result carries both dimensions and
// the affected counts for a confirmation dialog.
func (h *ConfigHandler) ActivateEmbedding(c fiber.Ctx) error {
	var body struct {
		Force bool `json:"force"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
		}
	}

	result, err := h.configs.ActivateEmbedding(c.Context(), c.Params("id"), body.Force)
	if errors.Is(err, port.ErrConfigNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "configuration not found")
	}
	if errors.Is(err, port.ErrInvalidEmbeddingConfig) {
		return fail(c, fiber.StatusBadRequest, codeInvalid, err.Error())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "activate embedding: "+err.Error())
	}

	if result.RequireClearKnowledge {
		return c.JSON(Response{
			Code: codeDimensionMismatch,
			Info: "dimension conflict: clearing the knowledge base is required before activation",
			Data: result,
		})
	}
	return ok(c, "activated", result)
}

// GetActive returns the active chat configuration.
func (h *ConfigHandler) GetActive(c fiber.Ctx) error {
	cfg, err := h.configs.GetActive(c.Context())
	if errors.Is(err, port.ErrNoActiveConfig) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "no active configuration")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, err.Error())
	}
	return ok(c, "query successful", cfg)
}

// GetActiveEmbedding returns the active embedding configuration.
func (h *ConfigHandler) GetActiveEmbedding(c fiber.Ctx) error {
	cfg, err := h.configs.GetActiveEmbedding(c.Context())
	if errors.Is(err, port.ErrNoActiveConfig) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "no active embedding configuration")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, err.Error())
	}
	return ok(c, "query successful", cfg)
}

// TestConnection probes an arbitrary, possibly unsaved configuration.
func (h *ConfigHandler) TestConnection(c fiber.Ctx) error {
	var cfg domain.ProviderConfig
	if err := c.Bind().JSON(&cfg); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}

	results := h.configs.TestConnection(c.Context(), &cfg)
	for _, r := range results {
		if r.Success {
			return ok(c, "connection test finished", results)
		}
	}
	return c.JSON(Response{Code: codeAllProbesFailed, Info: "all models failed to connect", Data: results})
}
