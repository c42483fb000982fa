package handler

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v3"

	"github.com/ragswitch/ragswitch/internal/port"
	"github.com/ragswitch/ragswitch/internal/service"
)

// RAGHandler exposes knowledge base management and ingestion.
type RAGHandler struct {
	rag *service.RAGService
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(rag *service.RAGService) *RAGHandler {
	return &RAGHandler{rag: rag}
}

// Register sets up RAG routes.
func (h *RAGHandler) Register(router fiber.Router) {
	rag := router.Group("/rag")
	rag.Get("/tags", h.ListTags)
	rag.Delete("/tags/:tag", h.DeleteTag)
	rag.Get("/tags/:tag/count", h.CountByTag)
	rag.Post("/upload", h.Upload)
	rag.Post("/analyze_repository", h.AnalyzeRepository)
	rag.Get("/tasks/:id", h.TaskProgress)
	rag.Post("/tasks/:id/cancel", h.CancelTask)
}

// ListTags returns all registered knowledge tags.
func (h *RAGHandler) ListTags(c fiber.Ctx) error {
	tags, err := h.rag.ListTags(c.Context())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "list tags: "+err.Error())
	}
	return ok(c, "query successful", tags)
}

// DeleteTag removes a knowledge base and its vectors.
func (h *RAGHandler) DeleteTag(c fiber.Ctx) error {
	deleted, err := h.rag.DeleteTag(c.Context(), c.Params("tag"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "delete tag: "+err.Error())
	}
	return ok(c, "deleted", fiber.Map{"deletedVectors": deleted})
}

// CountByTag counts stored vectors under a tag.
func (h *RAGHandler) CountByTag(c fiber.Ctx) error {
	count, err := h.rag.CountByTag(c.Context(), c.Params("tag"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "count by tag: "+err.Error())
	}
	return ok(c, "query successful", fiber.Map{"count": count})
}

// Upload ingests uploaded files into the knowledge base named by the tag
// form field.
func (h *RAGHandler) Upload(c fiber.Ctx) error {
	tag := c.FormValue("tag")
	if tag == "" {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "tag is required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid multipart form")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "no files provided")
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, codeInvalid, "open upload "+header.Filename+": "+err.Error())
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, codeInvalid, "read upload "+header.Filename+": "+err.Error())
		}
		files = append(files, service.UploadFile{Name: header.Filename, Data: data})
	}

	if err := h.rag.UploadFiles(c.Context(), tag, files); err != nil {
		if errors.Is(err, port.ErrNoActiveConfig) {
			return fail(c, fiber.StatusConflict, codeRefused, "no active embedding configuration")
		}
		return fail(c, fiber.StatusInternalServerError, codeError, "upload: "+err.Error())
	}
	return ok(c, "upload successful", nil)
}

// AnalyzeRepository schedules asynchronous repository ingestion and returns
// the task id for polling.
func (h *RAGHandler) AnalyzeRepository(c fiber.Ctx) error {
	var body struct {
		RepoURL  string `json:"repoUrl"`
		UserName string `json:"userName"`
		Token    string `json:"token"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "invalid request body")
	}
	if body.RepoURL == "" {
		return fail(c, fiber.StatusBadRequest, codeInvalid, "repoUrl is required")
	}

	taskID, err := h.rag.AnalyzeRepository(c.Context(), body.RepoURL, body.UserName, body.Token)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "schedule analysis: "+err.Error())
	}
	return ok(c, "task submitted", taskID)
}

// TaskProgress returns the progress record for an ingestion task.
func (h *RAGHandler) TaskProgress(c fiber.Ctx) error {
	progress, err := h.rag.QueryTaskProgress(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrTaskNotFound) {
		return fail(c, fiber.StatusNotFound, codeNotFound, "task not found or expired")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "query progress: "+err.Error())
	}
	return ok(c, "query successful", progress)
}

// CancelTask requests cooperative cancellation of a running task.
func (h *RAGHandler) CancelTask(c fiber.Ctx) error {
	if err := h.rag.CancelTask(c.Context(), c.Params("id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, codeError, "cancel task: "+err.Error())
	}
	return ok(c, "cancellation requested", nil)
}
