package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"increm-coach/internal/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(dir, "app.db")
	cfg.VectorStore.Backend = "relational"
	cfg.Redis.Enabled = false
	cfg.Chat.PersistMode = "sync"
	return cfg
}

func TestBuild_LocalStack(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Knowledge.WatchDir = t.TempDir()

	a, err := Build(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer a.Close()

	if a.ChatService == nil || a.KnowledgeService == nil || a.EmbeddingService == nil {
		t.Fatal("services not wired")
	}
	if a.VectorPool != nil || a.Redis != nil || a.MQConn != nil || a.TurnWorker != nil {
		t.Fatal("optional dependencies should stay nil")
	}

	stats, err := a.KnowledgeService.Stats(context.Background())
	if err != nil || stats.TotalChunks != 0 {
		t.Fatalf("unexpected stats: %+v err=%v", stats, err)
	}
}

func TestBuild_BadWatchDir(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Knowledge.WatchDir = filepath.Join(t.TempDir(), "missing")
	if _, err := Build(context.Background(), cfg, true); err == nil {
		t.Fatal("expected error for missing watch dir")
	}
}
