package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/Sesame-Disk/seafdav/internal/access"
	"github.com/Sesame-Disk/seafdav/internal/authdc"
	"github.com/Sesame-Disk/seafdav/internal/blob"
	"github.com/Sesame-Disk/seafdav/internal/config"
	"github.com/Sesame-Disk/seafdav/internal/davfs"
	"github.com/Sesame-Disk/seafdav/internal/db"
	"github.com/Sesame-Disk/seafdav/internal/reposvc"
	"github.com/Sesame-Disk/seafdav/internal/resolver"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
	"github.com/Sesame-Disk/seafdav/internal/server"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if len(os.Args) < 2 {
		os.Args = append(os.Args, "serve")
	}

	switch os.Args[1] {
	case "serve":
		runServer()
	case "migrate":
		runMigrations()
	case "version":
		printVersion()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Available commands: serve, migrate, version")
		os.Exit(1)
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	backend, err := newBlobBackend(context.Background(), cfg.Blob)
	if err != nil {
		log.Fatalf("Failed to initialize blob backend: %v", err)
	}

	objs := seafobj.NewStore(backend, 1)
	svc := reposvc.New(database, objs, backend, nil)
	proj := access.NewProjector(svc)
	proj.ShowRepoID = cfg.WebDAV.ShowRepoID
	res := resolver.New(svc, proj, objs)

	spillThreshold := cfg.Blob.SpillThresholdMB * 1024 * 1024
	fsys := davfs.New(res, proj, svc, objs, backend, spillThreshold, cfg.WebDAV.Readonly)

	dc := authdc.New(database)
	srv := server.New(cfg, dc, fsys)

	log.Printf("seafdav %s starting on %s", Version, cfg.Server.Address)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newBlobBackend(ctx context.Context, cfg config.BlobConfig) (blob.Backend, error) {
	switch cfg.Type {
	case "s3":
		return blob.NewS3Backend(ctx, blob.S3Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Prefix:          cfg.Prefix,
			UsePathStyle:    cfg.UsePathStyle,
		})
	default:
		return blob.NewFSBackend(cfg.Path)
	}
}

func runMigrations() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := database.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func printVersion() {
	fmt.Printf("seafdav %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}
