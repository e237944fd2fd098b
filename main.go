// Package main is the entry point for the porter content transfer service.
package main

import (
	"context"
	"log"
	"os"

	"github.com/sitesync/porter/internal/app"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		runServer()
	case "flush-media-cache":
		runFlushMediaCache()
	case "version":
		log.Printf("Porter version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		log.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func configPath() string {
	if path := os.Getenv("PORTER_CONFIG"); path != "" {
		return path
	}
	return "config.yml"
}

func runServer() {
	application, err := app.New(app.Options{
		ConfigPath: configPath(),
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer application.Close()

	if err := application.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runFlushMediaCache() {
	application, err := app.New(app.Options{
		ConfigPath: configPath(),
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer application.Close()

	if err := application.FlushMediaCache(context.Background()); err != nil {
		log.Fatalf("Failed to flush media cache: %v", err)
	}
	log.Println("Media cache flushed")
}

func printUsage() {
	log.Println("Porter - content transfer service")
	log.Println()
	log.Println("Usage:")
	log.Println("  porter [command]")
	log.Println()
	log.Println("Commands:")
	log.Println("  serve              Start the HTTP API server (default)")
	log.Println("  flush-media-cache  Drop all cached media translations")
	log.Println("  version            Print version information")
	log.Println("  help               Show this help message")
	log.Println()
	log.Println("Environment Variables:")
	log.Println("  PORTER_CONFIG       - Config file path (default: config.yml)")
	log.Println("  PORTER_PORT         - HTTP port override")
	log.Println("  PORTER_SITE_URL     - Site URL override")
	log.Println("  PORTER_DB_PASSWORD  - PostgreSQL password")
	log.Println("  REDIS_URL           - Redis address; enables the media cache")
	log.Println("  REDIS_PASSWORD      - Redis password (optional)")
	log.Println("  APP_DEBUG           - Enable debug logging: true|false")
}
