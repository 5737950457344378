package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"increm-coach/internal/ai"
	"increm-coach/internal/app"
	"increm-coach/internal/transport/http/middleware"
	"increm-coach/internal/transport/http/response"
)

const (
	msgTextRequired    = "Invalid request: text field required"
	msgChatFields      = "message and user_id required"
	msgChatFailed      = "Sorry, I encountered an error while processing your message. Please try again."
	msgEmbeddingFailed = "Failed to generate embedding"
	msgUserMismatch    = "user_id does not match the authenticated user"
)

type EmbeddingGenerator interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

type ChatReplier interface {
	Reply(ctx context.Context, input app.ChatInput) (*app.ChatResult, error)
}

// FunctionsHandler serves the two endpoints the mobile client calls directly.
// Their bodies are bare JSON, not the /api/v1 envelope.
type FunctionsHandler struct {
	embeddings       EmbeddingGenerator
	chat             ChatReplier
	requireTokenUser bool
}

type GenerateEmbeddingsRequest struct {
	Text string `json:"text"`
}

type ChatCompletionRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func NewFunctionsHandler(embeddings EmbeddingGenerator, chat ChatReplier, requireTokenUser bool) *FunctionsHandler {
	return &FunctionsHandler{embeddings: embeddings, chat: chat, requireTokenUser: requireTokenUser}
}

func (h *FunctionsHandler) GenerateEmbeddings(c *gin.Context) {
	var req GenerateEmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		response.FunctionError(c, http.StatusBadRequest, msgTextRequired)
		return
	}

	embedding, err := h.embeddings.Generate(c.Request.Context(), req.Text)
	if err != nil {
		log.Printf("generate embeddings failed: %v", err)
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.FunctionError(c, http.StatusBadRequest, msgTextRequired)
		case errors.Is(err, ai.ErrConfiguration):
			response.FunctionError(c, http.StatusInternalServerError, "embedding service is not configured")
		default:
			response.FunctionError(c, upstreamStatus(err), msgEmbeddingFailed)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"embedding": embedding})
}

func (h *FunctionsHandler) ChatCompletion(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FunctionError(c, http.StatusBadRequest, msgChatFields)
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.UserID) == "" {
		response.FunctionError(c, http.StatusBadRequest, msgChatFields)
		return
	}
	if h.requireTokenUser {
		if tokenUser, ok := middleware.UserID(c); !ok || tokenUser != strings.TrimSpace(req.UserID) {
			response.FunctionError(c, http.StatusForbidden, msgUserMismatch)
			return
		}
	}

	result, err := h.chat.Reply(c.Request.Context(), app.ChatInput{
		Message: req.Message,
		UserID:  req.UserID,
	})
	if err != nil {
		log.Printf("chat completion failed: %v", err)
		switch {
		case errors.Is(err, app.ErrMissingChatFields):
			response.FunctionError(c, http.StatusBadRequest, msgChatFields)
		case errors.Is(err, ai.ErrConfiguration):
			response.FunctionError(c, http.StatusInternalServerError, msgChatFailed)
		default:
			response.FunctionError(c, upstreamStatus(err), msgChatFailed)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ai.ErrEmbeddingService), errors.Is(err, ai.ErrCompletionService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
