package memory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

// Append stores a new exchange and rebuilds the index. The returned entry is
// the stored one.
func (u *UseCase) Append(ctx context.Context, query, response string) (*model.MemoryEntry, error) {
	entry := &model.MemoryEntry{
		ID:        model.NewMemoryID(),
		Timestamp: u.now(),
		Query:     query,
		Response:  response,
	}

	if err := u.admission.Admit(ctx, entry); err != nil {
		return nil, err
	}

	u.rebuildMu.Lock()
	defer u.rebuildMu.Unlock()

	if err := u.repo.AppendMemory(ctx, entry); err != nil {
		return nil, goerr.Wrap(err, "failed to append memory")
	}

	logging.From(ctx).Debug("memory appended", "id", entry.ID)

	if err := u.rebuildAfterWrite(ctx); err != nil {
		return nil, err
	}

	return entry, nil
}

// ImportResult counts what Import did with each record
type ImportResult struct {
	Imported int
	Skipped  int
	Rejected int
}

// Import appends records in order and rebuilds once at the end. Records whose
// ID is already stored are skipped, so importing the same file twice is
// harmless. Records denied by the admission policy are counted as rejected.
func (u *UseCase) Import(ctx context.Context, records []*model.MemoryRecord) (*ImportResult, error) {
	logger := logging.From(ctx)
	result := &ImportResult{}
	now := u.now()

	u.rebuildMu.Lock()
	defer u.rebuildMu.Unlock()

	for i, rec := range records {
		if rec == nil {
			continue
		}
		entry := rec.ToEntry(now)

		if err := u.admission.Admit(ctx, entry); err != nil {
			if !errors.Is(err, model.ErrRejectedByPolicy) {
				return nil, err
			}
			logger.Warn("memory rejected by policy", "position", i, logging.ErrAttr(err))
			result.Rejected++
			continue
		}

		err := u.repo.AppendMemory(ctx, entry)
		switch {
		case errors.Is(err, model.ErrDuplicateMemory):
			result.Skipped++
		case err != nil:
			return nil, goerr.Wrap(err, "failed to import memory", goerr.V("position", i))
		default:
			result.Imported++
		}
	}

	logger.Info("memories imported",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"rejected", result.Rejected)

	if err := u.rebuildAfterWrite(ctx); err != nil {
		return nil, err
	}

	return result, nil
}

// rebuildAfterWrite rebuilds once entries are committed. A snapshot that
// cannot be saved is only logged: the entries are stored and the new index is
// already served, so failing here would make callers retry and store
// duplicates.
func (u *UseCase) rebuildAfterWrite(ctx context.Context) error {
	_, err := u.rebuild(ctx)
	if errors.Is(err, ErrSnapshotNotSaved) {
		logging.From(ctx).Warn("index snapshot not saved", logging.ErrAttr(err))
		return nil
	}
	return err
}

// Load returns all entries in insertion order
func (u *UseCase) Load(ctx context.Context) ([]*model.MemoryEntry, error) {
	entries, err := u.repo.ListMemories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memories")
	}
	return entries, nil
}

// DecodeRecords parses an import file. A document starting with '[' is read
// as JSON; anything else as YAML.
func DecodeRecords(data []byte) ([]*model.MemoryRecord, error) {
	var records []*model.MemoryRecord

	if isJSONArray(data) {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, goerr.Wrap(err, "failed to parse JSON records")
		}
		return records, nil
	}

	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, goerr.Wrap(err, "failed to parse YAML records")
	}
	return records, nil
}

func isJSONArray(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
