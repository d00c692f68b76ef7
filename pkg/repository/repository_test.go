package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
)

func newEntry(query, response string, ts time.Time) *model.MemoryEntry {
	return &model.MemoryEntry{
		ID:        model.NewMemoryID(),
		Timestamp: ts,
		Query:     query,
		Response:  response,
	}
}

func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	t.Run("append keeps insertion order", func(t *testing.T) {
		before, err := repo.CountMemories(ctx)
		gt.NoError(t, err)

		// timestamps deliberately out of order
		entries := []*model.MemoryEntry{
			newEntry("first question", "first answer", now.Add(time.Hour)),
			newEntry("second question", "second answer", now),
			newEntry("third question", "", now.Add(-time.Hour)),
		}
		for _, e := range entries {
			gt.NoError(t, repo.AppendMemory(ctx, e))
		}

		listed, err := repo.ListMemories(ctx)
		gt.NoError(t, err)
		gt.A(t, listed).Length(before + 3)

		tail := listed[before:]
		for i, e := range entries {
			gt.Equal(t, tail[i].ID, e.ID)
			gt.Equal(t, tail[i].Query, e.Query)
			gt.Equal(t, tail[i].Response, e.Response)
			gt.True(t, tail[i].Timestamp.Equal(e.Timestamp))
		}

		count, err := repo.CountMemories(ctx)
		gt.NoError(t, err)
		gt.Equal(t, count, before+3)
	})

	t.Run("duplicate ID is rejected", func(t *testing.T) {
		e := newEntry("dup", "dup", now)
		gt.NoError(t, repo.AppendMemory(ctx, e))

		err := repo.AppendMemory(ctx, e)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrDuplicateMemory))
	})

	t.Run("invalid entry is rejected", func(t *testing.T) {
		err := repo.AppendMemory(ctx, &model.MemoryEntry{Query: "no id", Timestamp: now})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidMemory))

		err = repo.AppendMemory(ctx, &model.MemoryEntry{ID: model.NewMemoryID(), Query: "no time"})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidMemory))
	})

	t.Run("listed entries are copies", func(t *testing.T) {
		e := newEntry("immutable", "original", now)
		gt.NoError(t, repo.AppendMemory(ctx, e))
		e.Response = "changed by caller"

		listed, err := repo.ListMemories(ctx)
		gt.NoError(t, err)
		last := listed[len(listed)-1]
		gt.Equal(t, last.Response, "original")
	})
}

func TestMemoryRepository(t *testing.T) {
	repo := repository.NewMemory()

	count, err := repo.CountMemories(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, count, 0)

	testRepository(t, repo)
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	repo := repository.NewFile(path)

	listed, err := repo.ListMemories(context.Background())
	gt.NoError(t, err)
	gt.A(t, listed).Length(0)

	testRepository(t, repo)

	// a fresh handle reads what the first one wrote
	reopened := repository.NewFile(path)
	a, err := repo.ListMemories(context.Background())
	gt.NoError(t, err)
	b, err := reopened.ListMemories(context.Background())
	gt.NoError(t, err)
	gt.A(t, b).Length(len(a))
	for i := range a {
		gt.Equal(t, b[i].ID, a[i].ID)
	}
}

func TestFileRepositoryLegacyLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.json")

	legacy := `[
  {"ts": 1700000000000, "user": "fetch quotes", "assistant": "six quotes about the world"},
  {"ts": 1700000060000, "user": "summarize", "assistant": "short summary"}
]`
	gt.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	repo := repository.NewFile(path)
	entries, err := repo.ListMemories(ctx)
	gt.NoError(t, err)
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[0].Query, "fetch quotes")
	gt.Equal(t, entries[0].Response, "six quotes about the world")
	gt.True(t, entries[0].Timestamp.Equal(time.UnixMilli(1700000000000)))
	gt.NotEqual(t, entries[0].ID, model.MemoryID(""))

	// IDs derived from content are stable across reads
	again, err := repo.ListMemories(ctx)
	gt.NoError(t, err)
	gt.Equal(t, again[0].ID, entries[0].ID)
	gt.Equal(t, again[1].ID, entries[1].ID)

	// appending rewrites the file in the current layout and keeps old entries
	gt.NoError(t, repo.AppendMemory(ctx, newEntry("new", "entry", time.Now())))
	after, err := repo.ListMemories(ctx)
	gt.NoError(t, err)
	gt.A(t, after).Length(3)
	gt.Equal(t, after[0].ID, entries[0].ID)

	raw, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.S(t, string(raw)).Contains(`"response": "six quotes about the world"`)
}

func TestFileRepositoryBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	gt.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := repository.NewFile(path).ListMemories(context.Background())
	gt.Error(t, err)
}

func TestFirestoreRepository(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	ctx := context.Background()
	prefix := "test_" + string(model.NewMemoryID())[:8] + "_"
	repo, err := repository.NewFirestore(ctx, projectID, databaseID, repository.WithCollectionPrefix(prefix))
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}
