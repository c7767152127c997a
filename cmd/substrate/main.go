package main

import (
	"context"
	"log"
	"os"
	"strings"

	"humanos/substrate/internal/blob"
	"humanos/substrate/internal/config"
	"humanos/substrate/internal/search"
	"humanos/substrate/internal/sharing"
	"humanos/substrate/internal/store"
)

// Bootstrap binary: prepares every backing service the substrate packages
// depend on (schema, bucket, search index, sharing store) so embedding
// applications can assume they exist.
func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	log.Printf("migrations applied from %s", cfg.MigrationsDir)

	blobStore, err := blob.New(blob.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.ContextBucket,
	})
	if err != nil {
		log.Fatalf("blob store connection failed: %v", err)
	}
	if err := blobStore.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket failed: %v", err)
	}
	log.Printf("context bucket %s ready", blobStore.Bucket())

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatalf("failed to create history dir: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		shareStore, err := sharing.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer shareStore.Close()
		log.Printf("topic sharing store ready")
	} else {
		log.Printf("REDIS_URL empty, topic sharing disabled")
	}

	log.Printf("substrate backing services ready")
}
