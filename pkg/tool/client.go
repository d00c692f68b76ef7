package tool

import (
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

// Client contains shared resources that tools can use
type Client struct {
	Memory  *memory.UseCase
	Fetcher adapter.Fetcher
}
