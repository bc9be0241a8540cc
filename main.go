package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/httputil"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/logging"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/publish"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/queue"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/scheduler"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/scraper"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/storage"
)

var (
	searchTerm = flag.String("search", "", "Run one search and exit")
	postalCode = flag.String("postal", "", "Postal code for -search (or SEARCH_POSTAL_CODE)")
	searchKind = flag.String("kind", "gear", "Search kind for -search: gear or housing")
	sourceList = flag.String("sources", "", "Comma-separated sources for -search (default: all configured)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("daemon.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting listing watcher...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, source := range cfg.Sources {
		log.Printf("  - %s (%s)", source.Name, id)
	}

	clients := httputil.NewClients(&cfg.Proxy)
	adapters := scraper.NewAdapters(cfg, clients)

	queueStore := storage.NewQueueStore(cfg.QueuePath)
	resultStore := storage.NewResultStore(cfg.DataDir)

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	manager := queue.NewManager(queueStore, resultStore, adapters)
	manager.SetHistory(sqliteStore)
	manager.SetAdapterTimeout(cfg.Scraper.AdapterTimeout)
	manager.SetPublisher(newPublisher(cfg))

	ctx := context.Background()

	// Optional Postgres archive of everything ever seen
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		manager.SetArchiver(pgStore)
		log.Println("Listing archive enabled")
	}

	// A job interrupted by a previous crash is cleared, never resumed
	if err := manager.Recover(); err != nil {
		log.Fatalf("Failed to recover queue state: %v", err)
	}

	// One-shot mode
	if *searchTerm != "" {
		runOnce(ctx, cfg, manager)
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, manager, sqliteStore)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

func runOnce(ctx context.Context, cfg *config.Config, manager *queue.Manager) {
	postal := *postalCode
	if postal == "" {
		postal = os.Getenv("SEARCH_POSTAL_CODE")
	}

	req, err := queue.NewRequest(*searchTerm, postal, models.SearchKind(*searchKind), pickSources(cfg))
	if err != nil {
		log.Fatalf("Search rejected: %v", err)
	}

	if err := manager.Enqueue(req); err != nil {
		log.Fatalf("Failed to enqueue: %v", err)
	}
	if err := manager.Trigger(ctx); err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	log.Println("Search complete!")
}

func pickSources(cfg *config.Config) []models.SourceName {
	var sources []models.SourceName
	if *sourceList != "" {
		for _, s := range strings.Split(*sourceList, ",") {
			sources = append(sources, models.SourceName(strings.TrimSpace(s)))
		}
		return sources
	}

	for id, source := range cfg.Sources {
		for _, kind := range source.Kinds {
			if kind == *searchKind {
				sources = append(sources, models.SourceName(id))
				break
			}
		}
	}
	return sources
}

func newPublisher(cfg *config.Config) publish.Publisher {
	switch cfg.Publish.Mode {
	case "git":
		log.Printf("Publishing via git to %s/%s", cfg.Publish.Remote, cfg.Publish.Branch)
		return publish.NewGitPublisher(cfg.Publish.RepoDir, cfg.Publish.Remote, cfg.Publish.Branch)
	case "s3":
		p, err := publish.NewS3Publisher(context.Background(), publish.S3Config{
			Bucket:          cfg.Publish.S3Bucket,
			Region:          cfg.Publish.S3Region,
			Endpoint:        cfg.Publish.S3Endpoint,
			KeyPrefix:       cfg.Publish.S3KeyPrefix,
			AccessKeyID:     cfg.Publish.S3AccessKey,
			SecretAccessKey: cfg.Publish.S3SecretKey,
		})
		if err != nil {
			log.Fatalf("Failed to set up S3 publisher: %v", err)
		}
		log.Printf("Publishing to s3://%s", cfg.Publish.S3Bucket)
		return p
	default:
		log.Println("No publish target configured")
		return publish.NewNoopPublisher()
	}
}
