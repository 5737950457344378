package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"increm-coach/internal/bootstrap"
	"increm-coach/internal/config"
	"increm-coach/internal/knowledge"
	"increm-coach/internal/model"
	"increm-coach/internal/pkg/jwtutil"
	"increm-coach/internal/pkg/pdfextract"
)

func main() {
	var (
		seed     = flag.Bool("seed", false, "ingest the configured seed file")
		seedFile = flag.String("seed-file", "", "ingest documents from this YAML file instead of the configured one")
		file     = flag.String("file", "", "ingest a .txt, .md or .pdf file")
		title    = flag.String("title", "", "title for -file (defaults to the file name)")
		category = flag.String("category", "", "category for -file")
		clearAll = flag.Bool("clear", false, "delete every knowledge chunk first")
		stats    = flag.Bool("stats", false, "print knowledge base stats")
		admin    = flag.String("admin-token", "", "print an admin JWT for this user id and exit")
		tokenTTL = flag.Duration("token-ttl", 24*time.Hour, "lifetime of -admin-token")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *admin != "" {
		token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, *admin, jwtutil.RoleAdmin, *tokenTTL)
		if err != nil {
			log.Fatalf("generate token failed: %v", err)
		}
		fmt.Println(token)
		return
	}
	if *seedFile != "" {
		cfg.Knowledge.SeedFile = *seedFile
		*seed = true
	}

	app, err := bootstrap.Build(ctx, cfg, false)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	runErr := run(ctx, app, *clearAll, *seed, *file, *title, *category, *stats)
	if err := app.Close(); err != nil {
		log.Printf("close resources failed: %v", err)
	}
	if runErr != nil {
		log.Printf("ingest failed: %v", runErr)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *bootstrap.App, clearAll, seed bool, file, title, category string, stats bool) error {
	svc := app.KnowledgeService

	if clearAll {
		n, err := svc.Clear(ctx)
		if err != nil {
			return err
		}
		log.Printf("deleted %d knowledge chunks", n)
	}

	if seed {
		report, err := svc.Seed(ctx)
		if err != nil {
			return err
		}
		printJSON(report)
	}

	if file != "" {
		if title == "" {
			title = knowledge.TitleFromPath(file)
		}
		content, err := readDocument(file)
		if err != nil {
			return err
		}
		report, err := svc.Ingest(ctx, []model.KnowledgeDocument{{Title: title, Category: category, Content: content}})
		if err != nil {
			return err
		}
		printJSON(report)
	}

	if stats {
		s, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		printJSON(s)
	}
	return nil
}

func readDocument(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		raw, err := os.ReadFile(path)
		return string(raw), err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	text, err := pdfextract.ExtractFromReader(f)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s has no extractable text", path)
	}
	return text, nil
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("marshal output failed: %v", err)
		return
	}
	fmt.Println(string(out))
}
