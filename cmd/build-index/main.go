package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"complaintrag/internal/app"
	"complaintrag/internal/config"
	"complaintrag/internal/ingest"
	"complaintrag/internal/logger"
	"complaintrag/internal/service"
	"complaintrag/internal/vectorstore/qdrant"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		cfgPath    string
		csvPath    string
		syncQdrant bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/complaintrag/config.yaml)")
	flag.StringVar(&csvPath, "csv", "", "Complaints CSV (overrides data.complaints_csv)")
	flag.BoolVar(&syncQdrant, "sync-qdrant", false, "Also mirror the built index into the configured Qdrant collection")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	if csvPath != "" {
		cfg.Data.ComplaintsCSV = csvPath
	}

	lg, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer lg.Sync()
	lg.Info("config loaded", "path", cfgPath, "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, stats, err := ingest.LoadFile(cfg.Data.ComplaintsCSV, ingest.Columns{
		ID:      cfg.Data.IDColumn,
		Product: cfg.Data.ProductColumn,
		Text:    cfg.Data.TextColumn,
	})
	if err != nil {
		lg.Error("load complaints", "error", err)
		return 1
	}
	lg.Info("complaints loaded", "path", cfg.Data.ComplaintsCSV,
		"rows", stats.Rows, "kept", stats.Kept, "empty", stats.Empty, "duplicates", stats.Duplicates)

	ch, err := app.NewChunker(cfg)
	if err != nil {
		lg.Error("chunker", "error", err)
		return 1
	}
	emb, err := app.NewEmbedder(ctx, lg, cfg)
	if err != nil {
		lg.Error("embedder", "error", err)
		return 1
	}
	defer emb.Close()

	ix := service.NewIndexer(lg, ch, emb, cfg.Index.IndexPath, cfg.Index.MetadataPath)
	if syncQdrant {
		if cfg.VectorStore.Qdrant == nil {
			lg.Error("qdrant mirror requested but vector_store.qdrant is not configured")
			return 1
		}
		q, err := qdrant.Connect(lg, app.QdrantConfig(cfg, emb.ModelID()))
		if err != nil {
			lg.Error("qdrant connect", "error", err)
			return 1
		}
		defer q.Close()
		ix.WithMirror(q)
	}

	rep, err := ix.Build(ctx, rows)
	if err != nil {
		lg.Error("build index", "error", err)
		return 1
	}
	lg.Info("index built",
		"complaints", rep.Complaints,
		"chunks", rep.Chunks,
		"dimension", rep.Dimension,
		"model", rep.ModelID,
		"elapsed", rep.Elapsed,
		"index", cfg.Index.IndexPath,
		"metadata", cfg.Index.MetadataPath,
	)
	return 0
}
