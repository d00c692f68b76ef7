package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/policy"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tfidf"
)

// SnapshotKey is the storage key of the latest index snapshot
const SnapshotKey = "indexes/latest.json"

// ErrSnapshotNotSaved means the index was rebuilt and is in use in this
// process, but writing it to storage failed. The stored snapshot is then
// outdated and is rebuilt by the next process that loads it.
var ErrSnapshotNotSaved = goerr.New("index snapshot not saved")

// UseCase keeps the memory log and the TF-IDF snapshot derived from it
type UseCase struct {
	repo       repository.Repository
	storage    adapter.Storage
	admission  *policy.Admission
	minDocFreq int
	now        func() time.Time

	snapshot atomic.Pointer[model.Index]
	// rebuildMu serializes writers so snapshots are published in append order
	rebuildMu sync.Mutex
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage persists every rebuilt snapshot to storage
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithMinDocFreq sets the minimum document frequency of indexed terms
func WithMinDocFreq(n int) Option {
	return func(uc *UseCase) {
		uc.minDocFreq = n
	}
}

// WithPolicy checks every new memory against the admission policy
func WithPolicy(admission *policy.Admission) Option {
	return func(uc *UseCase) {
		uc.admission = admission
	}
}

// WithClock overrides the clock for entry timestamps and snapshot creation
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:       repo,
		minDocFreq: tfidf.DefaultMinDocFreq,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.minDocFreq < 1 {
		uc.minDocFreq = 1
	}

	return uc
}
