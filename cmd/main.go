package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"rag-assistant/internal/chromemdb"
	"rag-assistant/internal/config"
	"rag-assistant/internal/db"
	"rag-assistant/internal/embedding"
	"rag-assistant/internal/helper"
	"rag-assistant/internal/history"
	"rag-assistant/internal/ingest"
	"rag-assistant/internal/llmservice"
	"rag-assistant/internal/models"
	"rag-assistant/internal/mongodb"
	"rag-assistant/internal/parser"
	"rag-assistant/internal/rag"
	"rag-assistant/internal/server"
	"rag-assistant/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

// backend holds the opened vector store and whatever the admin commands
// need from the concrete backend.
type backend struct {
	store   *vectorstore.Store
	chromem *chromemdb.VectorDBManager
	mongoDB *mongo.Database
	close   func()
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file to ingest")
	sourceID := flag.String("source", "", "Source id for the ingested file (defaults to the file name)")
	query := flag.String("query", "", "Query to be answered")
	topK := flag.Int("top-k", 0, "Number of passages to retrieve (defaults to rag.top_k)")
	serve := flag.Bool("serve", false, "Run the HTTP server")
	count := flag.Bool("count", false, "Print the number of stored chunks")
	reset := flag.Bool("reset", false, "Delete every stored chunk")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk the file without embedding or storing it")
	export := flag.Bool("export", false, "Export the chromem collection to an encrypted file")
	importFile := flag.Bool("import", false, "Import the chromem collection from an encrypted file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel, *debug)
	log.Debug().Str("backend", cfg.RAG.Backend).Int("dimensions", cfg.RAG.EmbeddingDimensions).Msg("Loaded config")

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *filePath != "" && *dryRun {
		dryRunFile(cfg, *filePath, *sourceID)
		return
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer b.close()

	switch {
	case *reset:
		n, err := b.store.DeleteAll(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error clearing documents")
		}
		fmt.Printf("Deleted %d chunks\n", n)
	case *count:
		n, err := b.store.Count(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error counting documents")
		}
		fmt.Printf("%d chunks stored\n", n)
	case *export, *importFile:
		if b.chromem == nil {
			log.Fatal().Msg("-export and -import need the chromem backend")
		}
		if *export {
			err = b.chromem.Export(ctx)
		} else {
			err = b.chromem.Import(ctx)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Error transferring collection")
		}
	case *filePath != "":
		storeFile(ctx, cfg, b, *filePath, *sourceID)
	case *query != "":
		performRAG(ctx, cfg, b, *query, *topK)
	case *serve:
		runServer(ctx, cfg, b)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{close: func() {}}
	var coll vectorstore.Collection

	switch cfg.RAG.Backend {
	case config.BackendMemory:
		log.Warn().Msg("Using the in-memory vector store; nothing is persisted")
		coll = vectorstore.NewMemoryCollection()
	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		b.mongoDB = client.Database(cfg.Mongo.Database)
		b.close = func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Error disconnecting from mongo")
			}
		}
		coll = mongodb.NewCollection(b.mongoDB, cfg.Mongo.Collection)
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		b.close = func() { _ = bunDB.Close() }
		pg := db.NewCollection(bunDB, cfg.Database.Table, cfg.RAG.EmbeddingDimensions)
		if err := pg.InitDB(ctx); err != nil {
			b.close()
			return nil, err
		}
		coll = pg
	case config.BackendChromem:
		if !cfg.Chromem.InMemory {
			if err := os.MkdirAll(cfg.Chromem.Path, 0o755); err != nil {
				return nil, err
			}
		}
		m, err := chromemdb.NewVectorDBManager(&cfg.Chromem)
		if err != nil {
			return nil, err
		}
		b.chromem = m
		coll = m
	}

	b.store = vectorstore.New(coll, cfg.RAG.EmbeddingDimensions)

	kind, _ := models.ParseIndexKind(cfg.RAG.IndexKind)
	desc, err := b.store.EnsureIndex(ctx, kind, cfg.RAG.Tuning())
	if err != nil {
		// the store still works without an index on backends that search exhaustively
		log.Warn().Err(err).Msg("Could not ensure vector index")
	} else {
		log.Debug().Interface("index", desc).Msg("Vector index ready")
	}
	return b, nil
}

func newPipeline(cfg *config.Config, store vectorstore.Inserter) *ingest.Pipeline {
	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM, cfg.RAG.EmbeddingDimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	p, err := ingest.NewPipeline(embedder, store, ingest.Options{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		Concurrency:  cfg.RAG.EmbedConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing ingestion pipeline")
	}
	return p
}

func newRAG(cfg *config.Config, searcher vectorstore.Searcher) *rag.RAG {
	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM, cfg.RAG.EmbeddingDimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	primary, err := llmservice.New("primary", &cfg.PrimaryLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing primary generator")
	}

	var fallback llmservice.Generator
	if fg, err := llmservice.New("fallback", &cfg.FallbackLLM); err != nil {
		log.Warn().Err(err).Msg("Fallback generator unavailable")
	} else {
		fallback = fg
	}

	return rag.NewRAG(embedder, searcher, primary, fallback, rag.Options{
		SystemMessage: cfg.PrimaryLLM.SystemMessage,
		TopK:          cfg.RAG.TopK,
	})
}

func dryRunFile(cfg *config.Config, filePath, sourceID string) {
	if sourceID == "" {
		sourceID = filePath
	}
	pages, err := parser.ParsePages(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	p := newPipelineForChunking(cfg)
	chunks, err := p.Chunk(sourceID, pages)
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking document")
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(chunks)
}

// newPipelineForChunking builds a pipeline that is only used to chunk, so it
// needs neither an embedder nor a store.
func newPipelineForChunking(cfg *config.Config) *ingest.Pipeline {
	p, err := ingest.NewPipeline(nil, nil, ingest.Options{ChunkSize: cfg.RAG.ChunkSize, ChunkOverlap: cfg.RAG.ChunkOverlap})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing ingestion pipeline")
	}
	return p
}

func storeFile(ctx context.Context, cfg *config.Config, b *backend, filePath, sourceID string) {
	report, err := newPipeline(cfg, b.store).IngestFile(ctx, filePath, sourceID)
	helper.PrettyPrint(helper.ReportSummary(report))
	if err != nil {
		log.Fatal().Err(err).Msg("Error storing document")
	}
}

func performRAG(ctx context.Context, cfg *config.Config, b *backend, query string, topK int) {
	res := newRAG(cfg, b.store).Answer(ctx, query, topK)

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, s := range res.Sources {
		fmt.Printf("[%.3f] %s p.%d #%d\n", s.Score, s.SourceID, s.PageNumber, s.ChunkIndex)
	}
	fmt.Println()

	log.Info().Bool("fallback", res.UsedFallback).Bool("context", res.ContextUsed).Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", res.Text)

	if res.Failed {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, b *backend) {
	var recorder history.Recorder
	if b.mongoDB != nil {
		recorder = history.NewMongoRecorder(b.mongoDB, cfg.Mongo.HistoryCollection)
	} else {
		recorder = history.NewMemoryRecorder()
	}

	srv := server.NewServer(newRAG(cfg, b.store), newPipeline(cfg, b.store), recorder, &cfg.Server)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}
}
