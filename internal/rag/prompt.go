package rag

import (
	"strings"

	"increm-coach/internal/ai"
	"increm-coach/internal/model"
)

// NoContextFallback replaces the context block when retrieval found nothing.
const NoContextFallback = "No relevant information found in the knowledge base."

const systemPromptHead = `You are Increm AI, a knowledgeable and encouraging fitness coach. Your role is to provide helpful, evidence-based advice on exercise, training, and fitness.

Use the following context from the Increm knowledge base to answer the user's question. If the context doesn't contain relevant information, you can provide general fitness advice, but mention that it's not from the knowledge base.

Context:
`

const systemPromptGuidelines = `

Guidelines:
- Be encouraging and motivating
- Provide specific, actionable advice
- If asked about exercises, mention proper form and safety
- If the question is completely unrelated to fitness, politely redirect to fitness topics
- Keep responses concise but informative (2-4 paragraphs max)`

// BuildContext joins the retrieved chunk texts with blank lines, keeping
// retrieval order.
func BuildContext(chunks []model.ScoredChunk) string {
	if len(chunks) == 0 {
		return NoContextFallback
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.ChunkText)
	}
	return strings.Join(parts, "\n\n")
}

func BuildSystemPrompt(chunks []model.ScoredChunk) string {
	return systemPromptHead + BuildContext(chunks) + systemPromptGuidelines
}

// BuildMessages returns the system prompt followed by the user's message.
func BuildMessages(chunks []model.ScoredChunk, message string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: "system", Content: BuildSystemPrompt(chunks)},
		{Role: "user", Content: message},
	}
}

// SourcesLabel joins the titles of the chunks with ", " in retrieval order,
// or returns nil when there are none. A title matched by several chunks is
// listed once, where the Supabase edge function repeated it per chunk.
func SourcesLabel(chunks []model.ScoredChunk) *string {
	if len(chunks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(chunks))
	titles := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Title]; ok {
			continue
		}
		seen[c.Title] = struct{}{}
		titles = append(titles, c.Title)
	}
	label := strings.Join(titles, ", ")
	return &label
}
