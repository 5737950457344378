package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 400

const sentenceJoiner = ". "

// SplitSentences returns the trimmed, non-empty sentences of text.
// A sentence ends at '.', '!' or '?' followed by whitespace or the end of text;
// the terminator itself is dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	sentences := make([]string, 0, 8)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:i])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// ChunkText packs sentences into chunks of at most size characters. A
// sentence longer than size becomes a chunk of its own.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(sentences))
	var buf strings.Builder
	bufLen := 0
	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if bufLen > 0 && bufLen+len(sentenceJoiner)+sLen > size {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteString(sentenceJoiner)
			bufLen += len(sentenceJoiner)
		}
		buf.WriteString(s)
		bufLen += sLen
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
