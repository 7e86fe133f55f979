// Package main provides the standalone MCP entry point. It needs no external
// database: packs and second readings live in SQLite files under the data
// directory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lirads-audit-server/internal/config"
	"github.com/lirads-audit-server/internal/mcp"
)

func main() {
	// An optional .env next to the binary's working directory.
	_ = godotenv.Load()

	cfg := config.LoadLiteConfig()

	// stdout carries the MCP stream, so diagnostics go to stderr.
	log.SetOutput(os.Stderr)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		log.Printf("MCP server failed: %v", err)
		server.Close()
		os.Exit(1)
	}

	log.Println("LI-RADS audit MCP server stopped")
}
