package model

// KnowledgeDocument is one source document before chunking.
type KnowledgeDocument struct {
	Title    string `json:"title" yaml:"title"`
	Category string `json:"category" yaml:"category"`
	Content  string `json:"content" yaml:"content"`
}
