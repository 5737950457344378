package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"increm-coach/internal/model"
)

type seedFile struct {
	Documents []model.KnowledgeDocument `yaml:"documents"`
}

// LoadSeed reads the YAML list of built-in knowledge documents.
func LoadSeed(path string) ([]model.KnowledgeDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file failed: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) ([]model.KnowledgeDocument, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file failed: %w", err)
	}
	for i, doc := range f.Documents {
		if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Content) == "" {
			return nil, fmt.Errorf("seed document %d: title and content are required", i)
		}
	}
	return f.Documents, nil
}
