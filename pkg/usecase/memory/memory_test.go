package memory_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/policy"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
}

func seed(t *testing.T, uc *memory.UseCase) {
	t.Helper()
	ctx := context.Background()
	_, err := uc.Append(ctx, "tell me about cats", "cats are great pets")
	gt.NoError(t, err)
	_, err = uc.Append(ctx, "tell me about dogs", "dogs are loyal")
	gt.NoError(t, err)
	_, err = uc.Append(ctx, "fetch quotes", "six quotes about the world")
	gt.NoError(t, err)
}

func TestEmptyMemory(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory())

	hits, err := uc.Retrieve(ctx, "anything", 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)

	stats, err := uc.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, stats.Documents, 0)
	gt.Equal(t, stats.Vocabulary, 0)
}

func TestAppendAndRetrieve(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory(), memory.WithClock(fixedClock()))
	seed(t, uc)

	t.Run("relevant entry first", func(t *testing.T) {
		hits, err := uc.Retrieve(ctx, "cats", 2)
		gt.NoError(t, err)
		gt.A(t, hits).Length(1)
		gt.Equal(t, hits[0].Query, "tell me about cats")
		gt.Equal(t, hits[0].ID, 0)
		gt.True(t, hits[0].Score > 0 && hits[0].Score <= 1)
	})

	t.Run("shared terms rank both", func(t *testing.T) {
		hits, err := uc.Retrieve(ctx, "tell me about dogs", 3)
		gt.NoError(t, err)
		gt.A(t, hits).Longer(1)
		gt.Equal(t, hits[0].Query, "tell me about dogs")
		for i := 1; i < len(hits); i++ {
			gt.True(t, hits[i-1].Score >= hits[i].Score)
		}
	})

	t.Run("out of vocabulary", func(t *testing.T) {
		hits, err := uc.Retrieve(ctx, "zebra", 3)
		gt.NoError(t, err)
		gt.A(t, hits).Length(0)
	})

	t.Run("k is not positive", func(t *testing.T) {
		hits, err := uc.Retrieve(ctx, "cats", 0)
		gt.NoError(t, err)
		gt.A(t, hits).Length(0)
	})

	t.Run("entries keep order and timestamps", func(t *testing.T) {
		entries, err := uc.Load(ctx)
		gt.NoError(t, err)
		gt.A(t, entries).Length(3)
		gt.Equal(t, entries[0].Query, "tell me about cats")
		gt.Equal(t, entries[2].Response, "six quotes about the world")
		gt.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := uc.Stats(ctx)
		gt.NoError(t, err)
		gt.Equal(t, stats.Documents, 3)
		gt.True(t, stats.Vocabulary > 0)
		gt.Equal(t, stats.MinDocFreq, 1)
	})
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory())
	seed(t, uc)

	before, err := uc.Snapshot(ctx)
	gt.NoError(t, err)
	vocab := append([]string{}, before.Vocabulary...)

	_, err = uc.Append(ctx, "what about zebras", "zebras have stripes")
	gt.NoError(t, err)

	gt.Equal(t, before.DocCount(), 3)
	gt.V(t, before.Vocabulary).Equal(vocab)

	after, err := uc.Snapshot(ctx)
	gt.NoError(t, err)
	gt.Equal(t, after.DocCount(), 4)
	gt.True(t, after.VocabSize() > before.VocabSize())
	gt.V(t, after.Vocabulary[:len(vocab)]).Equal(vocab)

	hits, err := uc.Retrieve(ctx, "zebras", 1)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, 3)
}

func TestRetrieveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory())
	seed(t, uc)

	a, err := uc.Retrieve(ctx, "tell me about cats and dogs", 3)
	gt.NoError(t, err)
	b, err := uc.Retrieve(ctx, "tell me about cats and dogs", 3)
	gt.NoError(t, err)
	gt.V(t, b).Equal(a)
}

func TestSnapshotPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := repository.NewFile(filepath.Join(dir, "memory.json"))
	storage := adapter.NewFileStorage(filepath.Join(dir, "index"))

	uc := memory.New(repo, memory.WithStorage(storage))
	seed(t, uc)

	_, err := os.Stat(filepath.Join(dir, "index", "indexes", "latest.json"))
	gt.NoError(t, err)

	t.Run("new process reads stored snapshot", func(t *testing.T) {
		created, err := uc.Snapshot(ctx)
		gt.NoError(t, err)

		// a clock that would produce a different CreatedAt on rebuild
		reopened := memory.New(repo,
			memory.WithStorage(storage),
			memory.WithClock(func() time.Time { return time.Unix(0, 0) }))
		idx, err := reopened.Snapshot(ctx)
		gt.NoError(t, err)
		gt.Equal(t, idx.DocCount(), 3)
		gt.True(t, idx.CreatedAt.Equal(created.CreatedAt))
	})

	t.Run("outdated snapshot is rebuilt", func(t *testing.T) {
		gt.NoError(t, repo.AppendMemory(ctx, &model.MemoryEntry{
			ID:        model.NewMemoryID(),
			Timestamp: time.Now(),
			Query:     "appended by another process",
		}))

		reopened := memory.New(repo, memory.WithStorage(storage))
		idx, err := reopened.Snapshot(ctx)
		gt.NoError(t, err)
		gt.Equal(t, idx.DocCount(), 4)
	})

	t.Run("broken snapshot is rebuilt", func(t *testing.T) {
		path := filepath.Join(dir, "index", "indexes", "latest.json")
		gt.NoError(t, os.WriteFile(path, []byte(`{"vocabulary":["a1"],"idf":[]}`), 0644))

		reopened := memory.New(repo, memory.WithStorage(storage))
		idx, err := reopened.Snapshot(ctx)
		gt.NoError(t, err)
		gt.Equal(t, idx.DocCount(), 4)
		gt.NoError(t, idx.Validate())
	})
}

type failingStorage struct{}

func (failingStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return nil, errors.New("storage is read-only")
}

func (failingStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, adapter.ErrObjectNotFound
}

func TestRebuildStorageFailure(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory(), memory.WithStorage(failingStorage{}))

	// the entry is stored and searchable even though the snapshot is not saved
	entry, err := uc.Append(ctx, "where do zebras live", "zebras live in savanna")
	gt.NoError(t, err)
	gt.V(t, entry).NotNil()

	hits, err := uc.Retrieve(ctx, "zebras", 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)

	_, err = uc.Rebuild(ctx)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, memory.ErrSnapshotNotSaved))
}

// flakyStorage fails the first Put and then behaves like its backing storage
type flakyStorage struct {
	adapter.Storage
	mu    sync.Mutex
	fails int
}

func (s *flakyStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("transient")
	}
	return s.Storage.Put(ctx, key)
}

func TestAppendRecoversFromSnapshotFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	storage := &flakyStorage{Storage: adapter.NewFileStorage(t.TempDir())}
	uc := memory.New(repo, memory.WithStorage(storage))

	_, err := uc.Append(ctx, "tell me about cats", "cats are great pets")
	gt.NoError(t, err)

	storage.fails = 1
	_, err = uc.Append(ctx, "where do zebras live", "zebras live in savanna")
	gt.NoError(t, err)

	count, err := repo.CountMemories(ctx)
	gt.NoError(t, err)
	gt.Equal(t, count, 2)

	hits, err := uc.Retrieve(ctx, "zebras", 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Query, "where do zebras live")

	// the stored snapshot is outdated; a fresh process rebuilds it
	reopened := memory.New(repo, memory.WithStorage(storage))
	hits, err = reopened.Retrieve(ctx, "zebras", 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
}

func TestAppendRejectedByPolicy(t *testing.T) {
	ctx := context.Background()
	admission, err := policy.New(ctx, map[string]string{
		"memory.rego": `package memory

deny contains "empty response" if {
	input.response == ""
}
`,
	})
	gt.NoError(t, err)

	repo := repository.NewMemory()
	uc := memory.New(repo, memory.WithPolicy(admission))

	_, err = uc.Append(ctx, "question", "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRejectedByPolicy))

	count, err := repo.CountMemories(ctx)
	gt.NoError(t, err)
	gt.Equal(t, count, 0)

	entry, err := uc.Append(ctx, "question", "answer")
	gt.NoError(t, err)
	gt.NotEqual(t, entry.ID, model.MemoryID(""))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	admission, err := policy.New(ctx, map[string]string{
		"memory.rego": "package memory\n\ndeny contains \"blocked\" if {\n\tinput.query == \"blocked\"\n}\n",
	})
	gt.NoError(t, err)

	uc := memory.New(repository.NewMemory(), memory.WithPolicy(admission))

	data := `[
  {"ts": 1700000000000, "user": "fetch quotes", "assistant": "six quotes"},
  {"id": "fixed-id", "timestamp": "2024-01-02T03:04:05Z", "query": "cats", "response": "meow"},
  {"query": "blocked", "response": "nope"}
]`
	records, err := memory.DecodeRecords([]byte(data))
	gt.NoError(t, err)
	gt.A(t, records).Length(3)

	result, err := uc.Import(ctx, records)
	gt.NoError(t, err)
	gt.Equal(t, result.Imported, 2)
	gt.Equal(t, result.Rejected, 1)
	gt.Equal(t, result.Skipped, 0)

	// importing again only skips
	result, err = uc.Import(ctx, records)
	gt.NoError(t, err)
	gt.Equal(t, result.Imported, 0)
	gt.Equal(t, result.Skipped, 2)

	entries, err := uc.Load(ctx)
	gt.NoError(t, err)
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[1].ID, model.MemoryID("fixed-id"))
	gt.True(t, entries[1].Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	hits, err := uc.Retrieve(ctx, "quotes", 5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Query, "fetch quotes")
}

func TestImportWithoutTimestamp(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory(), memory.WithClock(fixedClock()))

	records, err := memory.DecodeRecords([]byte(`[{"user":"hello there","assistant":"hi"}]`))
	gt.NoError(t, err)

	first, err := uc.Import(ctx, records)
	gt.NoError(t, err)
	gt.Equal(t, first.Imported, 1)

	second, err := uc.Import(ctx, records)
	gt.NoError(t, err)
	gt.Equal(t, second.Imported, 0)
	gt.Equal(t, second.Skipped, 1)

	entries, err := uc.Load(ctx)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
}

func TestDecodeYAMLRecords(t *testing.T) {
	data := strings.Join([]string{
		"- query: how to rebuild",
		"  response: run recall index",
		"  timestamp: 2024-03-04T05:06:07Z",
		"- user: legacy question",
		"  assistant: legacy answer",
		"  ts: 1700000000000",
	}, "\n")

	records, err := memory.DecodeRecords([]byte(data))
	gt.NoError(t, err)
	gt.A(t, records).Length(2)

	first := records[0].ToEntry(time.Now())
	gt.Equal(t, first.Query, "how to rebuild")
	gt.True(t, first.Timestamp.Equal(time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)))

	second := records[1].ToEntry(time.Now())
	gt.Equal(t, second.Response, "legacy answer")
	gt.True(t, second.Timestamp.Equal(time.UnixMilli(1700000000000)))
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Append(ctx, "concurrent question", "concurrent answer")
			gt.NoError(t, err)
			_, err = uc.Retrieve(ctx, "concurrent", 3)
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	idx, err := uc.Snapshot(ctx)
	gt.NoError(t, err)
	gt.Equal(t, idx.DocCount(), 10)
}
