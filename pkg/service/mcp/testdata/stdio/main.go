package main

import (
	"context"
	"log"

	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/service/mcp"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

// Serves an in-memory store seeded with one exchange over stdio
func main() {
	ctx := context.Background()

	mem := memory.New(repository.NewMemory())
	if _, err := mem.Append(ctx, "tell me about cats", "cats are great pets"); err != nil {
		log.Fatalf("failed to seed memory: %v", err)
	}

	if err := mcp.ServeStdio(ctx, mcp.NewServer(mem)); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
