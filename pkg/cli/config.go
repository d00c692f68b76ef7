package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/policy"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	storeFile      = "file"
	storeFirestore = "firestore"
	storeMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	store      string
	memoryFile string
	project    string
	database   string
	collection string

	// Index
	indexDir   string
	bucket     string
	minDocFreq int64
	policyDir  string

	// Adapters
	geminiProject  string
	geminiLocation string
	geminiModel    string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("RECALL_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("RECALL_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "store",
			Aliases:     []string{"s"},
			Usage:       "Memory store backend (file, firestore, memory)",
			Value:       storeFile,
			Sources:     cli.EnvVars("RECALL_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "memory-file",
			Usage:       "JSON file of the file store",
			Value:       "memory.json",
			Sources:     cli.EnvVars("RECALL_MEMORY_FILE"),
			Destination: &cfg.memoryFile,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "collection-prefix",
			Usage:       "Prefix of Firestore collection names",
			Sources:     cli.EnvVars("RECALL_COLLECTION_PREFIX"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "index-dir",
			Usage:       "Directory to keep the index snapshot in",
			Sources:     cli.EnvVars("RECALL_INDEX_DIR"),
			Destination: &cfg.indexDir,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket to keep the index snapshot in",
			Sources:     cli.EnvVars("RECALL_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.IntFlag{
			Name:        "min-doc-freq",
			Usage:       "Minimum number of memories a term must appear in to be indexed",
			Value:       1,
			Sources:     cli.EnvVars("RECALL_MIN_DOC_FREQ"),
			Destination: &cfg.minDocFreq,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies deciding which memories are stored",
			Sources:     cli.EnvVars("RECALL_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini (default: --project)",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       adapter.DefaultGeminiModel,
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// newLogger replaces the default logger and attaches it to ctx
func (cfg *config) newLogger(ctx context.Context, w io.Writer) (context.Context, *slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return ctx, nil, err
	}

	logger := logging.New(cfg.logLevel, w, logging.WithFormat(format))
	logging.SetDefault(logger)
	return logging.With(ctx, logger), logger, nil
}

// newRepository creates a new repository instance. The returned function
// releases its resources.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	switch cfg.store {
	case storeFile:
		if cfg.memoryFile == "" {
			return nil, nil, goerr.New("memory-file is required for file store")
		}
		return repository.NewFile(cfg.memoryFile), func() {}, nil

	case storeMemory:
		return repository.NewMemory(), func() {}, nil

	case storeFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required for firestore store")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required for firestore store")
		}

		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database,
			repository.WithCollectionPrefix(cfg.collection))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logging.From(ctx).Warn("failed to close repository", logging.ErrAttr(err))
			}
		}, nil

	default:
		return nil, nil, goerr.New("unknown store",
			goerr.V("store", cfg.store),
			goerr.V("supported", []string{storeFile, storeFirestore, storeMemory}))
	}
}

// newStorage returns the snapshot storage, or nil when neither a bucket nor
// an index directory is configured
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	switch {
	case cfg.bucket != "":
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return storage, nil

	case cfg.indexDir != "":
		return adapter.NewFileStorage(cfg.indexDir), nil

	default:
		return nil, nil
	}
}

// newMemory wires the repository, snapshot storage and admission policy into
// the memory use case
func (cfg *config) newMemory(ctx context.Context) (*memory.UseCase, func(), error) {
	repo, closer, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []memory.Option{
		memory.WithMinDocFreq(int(cfg.minDocFreq)),
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		closer()
		return nil, nil, err
	}
	if storage != nil {
		opts = append(opts, memory.WithStorage(storage))
	}

	if cfg.policyDir != "" {
		admission, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			closer()
			return nil, nil, goerr.Wrap(err, "failed to load policy")
		}
		opts = append(opts, memory.WithPolicy(admission))
	}

	return memory.New(repo, opts...), closer, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	project := cfg.geminiProject
	if project == "" {
		project = cfg.project
	}
	if project == "" {
		return nil, goerr.New("gemini-project or project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	return adapter.NewGemini(ctx, project, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel))
}
