package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"increm-coach/internal/ai"
	"increm-coach/internal/app"
	"increm-coach/internal/model"
	"increm-coach/internal/pkg/pdfextract"
	"increm-coach/internal/transport/http/response"
)

type KnowledgeManager interface {
	Ingest(ctx context.Context, docs []model.KnowledgeDocument) (*app.IngestReport, error)
	IngestPDF(ctx context.Context, title, category string, r io.ReaderAt, size int64) (*app.IngestReport, error)
	Seed(ctx context.Context) (*app.IngestReport, error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*app.KnowledgeStats, error)
}

type KnowledgeHandler struct {
	knowledge KnowledgeManager
}

type IngestRequest struct {
	Documents []model.KnowledgeDocument `json:"documents" binding:"required,min=1"`
}

func NewKnowledgeHandler(knowledge KnowledgeManager) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

func (h *KnowledgeHandler) Stats(c *gin.Context) {
	stats, err := h.knowledge.Stats(c.Request.Context())
	if err != nil {
		log.Printf("knowledge stats failed: %v", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "knowledge stats failed")
		return
	}
	response.OK(c, stats)
}

func (h *KnowledgeHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	report, err := h.knowledge.Ingest(c.Request.Context(), req.Documents)
	h.writeReport(c, report, err)
}

func (h *KnowledgeHandler) Seed(c *gin.Context) {
	report, err := h.knowledge.Seed(c.Request.Context())
	h.writeReport(c, report, err)
}

// Upload accepts a multipart form: "file" (PDF), optional "title" and "category".
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > pdfextract.MaxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 20MB)")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	report, err := h.knowledge.IngestPDF(c.Request.Context(), title, c.PostForm("category"), f, file.Size)
	h.writeReport(c, report, err)
}

func (h *KnowledgeHandler) Clear(c *gin.Context) {
	deleted, err := h.knowledge.Clear(c.Request.Context())
	if err != nil {
		log.Printf("clear knowledge failed: %v", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear knowledge failed")
		return
	}
	response.OK(c, gin.H{"deleted": deleted})
}

func (h *KnowledgeHandler) writeReport(c *gin.Context, report *app.IngestReport, err error) {
	if err != nil {
		log.Printf("knowledge ingest failed: %v", err)
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, ai.ErrConfiguration):
			response.Error(c, http.StatusInternalServerError, response.CodeUnconfigured, "embedding service is not configured")
		case errors.Is(err, app.ErrIngestFailed):
			response.Error(c, http.StatusBadGateway, response.CodeUpstream, "no chunk could be embedded or stored")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}
	response.OK(c, report)
}
