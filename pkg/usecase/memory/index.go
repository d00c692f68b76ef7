package memory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tfidf"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// Rebuild builds a fresh index from every stored entry, publishes it and
// persists it when a storage is configured. Callers holding the previous
// snapshot keep a consistent view. A failed write returns the published index
// with ErrSnapshotNotSaved.
func (u *UseCase) Rebuild(ctx context.Context) (*model.Index, error) {
	u.rebuildMu.Lock()
	defer u.rebuildMu.Unlock()
	return u.rebuild(ctx)
}

func (u *UseCase) rebuild(ctx context.Context) (*model.Index, error) {
	entries, err := u.repo.ListMemories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories for rebuild")
	}

	idx := tfidf.Build(entries,
		tfidf.WithMinDocFreq(u.minDocFreq),
		tfidf.WithNow(u.now),
	)

	u.snapshot.Store(idx)

	logging.From(ctx).Debug("index rebuilt",
		"documents", idx.DocCount(),
		"vocabulary", idx.VocabSize())

	if err := u.saveSnapshot(ctx, idx); err != nil {
		return idx, goerr.Wrap(ErrSnapshotNotSaved, "failed to persist index",
			goerr.V("cause", err.Error()),
			goerr.V("key", SnapshotKey))
	}

	return idx, nil
}

// Snapshot returns the current index. On first use it reads the persisted
// snapshot; a missing, broken or outdated one is rebuilt.
func (u *UseCase) Snapshot(ctx context.Context) (*model.Index, error) {
	if idx := u.snapshot.Load(); idx != nil {
		return idx, nil
	}

	u.rebuildMu.Lock()
	defer u.rebuildMu.Unlock()

	if idx := u.snapshot.Load(); idx != nil {
		return idx, nil
	}

	idx, err := u.loadSnapshot(ctx)
	if err != nil {
		logging.From(ctx).Warn("discarding stored index snapshot", logging.ErrAttr(err))
		idx = nil
	}

	if idx != nil {
		count, err := u.repo.CountMemories(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count memories")
		}
		if count == idx.DocCount() && idx.MinDocFreq == u.minDocFreq {
			u.snapshot.Store(idx)
			return idx, nil
		}
		logging.From(ctx).Info("stored index snapshot is outdated",
			"documents", idx.DocCount(),
			"memories", count)
	}

	idx, err = u.rebuild(ctx)
	if errors.Is(err, ErrSnapshotNotSaved) {
		logging.From(ctx).Warn("index snapshot not saved", logging.ErrAttr(err))
		return idx, nil
	}
	return idx, err
}

func (u *UseCase) saveSnapshot(ctx context.Context, idx *model.Index) error {
	if u.storage == nil {
		return nil
	}

	writer, err := u.storage.Put(ctx, SnapshotKey)
	if err != nil {
		return goerr.Wrap(err, "failed to create snapshot writer")
	}

	if err := json.NewEncoder(writer).Encode(idx); err != nil {
		writer.Close()
		return goerr.Wrap(err, "failed to write index snapshot", goerr.V("key", SnapshotKey))
	}

	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close snapshot writer", goerr.V("key", SnapshotKey))
	}

	return nil
}

// loadSnapshot returns nil without error when no snapshot is stored
func (u *UseCase) loadSnapshot(ctx context.Context) (*model.Index, error) {
	if u.storage == nil {
		return nil, nil
	}

	reader, err := u.storage.Get(ctx, SnapshotKey)
	if errors.Is(err, adapter.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open index snapshot")
	}
	defer reader.Close()

	var idx model.Index
	if err := json.NewDecoder(reader).Decode(&idx); err != nil {
		return nil, goerr.Wrap(err, "failed to decode index snapshot", goerr.V("key", SnapshotKey))
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	return &idx, nil
}
