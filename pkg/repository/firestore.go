package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionMemories = "memories"
	collectionMeta     = "meta"
	docSequence        = "sequence"
)

// Firestore stores entries as documents of the "memories" collection. Each
// document carries a sequence number assigned in the same transaction as the
// write, which gives a total insertion order independent of clock skew.
type Firestore struct {
	client *firestore.Client
	prefix string
}

// FirestoreOption is a functional option for Firestore repository
type FirestoreOption func(*firestoreConfig)

type firestoreConfig struct {
	prefix     string
	clientOpts []option.ClientOption
}

// WithCollectionPrefix prefixes collection names, e.g. to isolate test runs
func WithCollectionPrefix(prefix string) FirestoreOption {
	return func(c *firestoreConfig) {
		c.prefix = prefix
	}
}

// WithClientOptions passes options to the underlying Firestore client
func WithClientOptions(opts ...option.ClientOption) FirestoreOption {
	return func(c *firestoreConfig) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

type firestoreMemory struct {
	ID        string
	Seq       int64
	Timestamp time.Time
	Query     string
	Response  string
}

type firestoreSequence struct {
	Next int64
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	var cfg firestoreConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, cfg.clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return &Firestore{
		client: client,
		prefix: cfg.prefix,
	}, nil
}

// Close releases the Firestore client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) memories() *firestore.CollectionRef {
	return r.client.Collection(r.prefix + collectionMemories)
}

func (r *Firestore) sequence() *firestore.DocumentRef {
	return r.client.Collection(r.prefix + collectionMeta).Doc(docSequence)
}

func (r *Firestore) AppendMemory(ctx context.Context, entry *model.MemoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	seqRef := r.sequence()
	memRef := r.memories().Doc(string(entry.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var seq firestoreSequence
		snap, err := tx.Get(seqRef)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return goerr.Wrap(err, "failed to get sequence")
		default:
			if err := snap.DataTo(&seq); err != nil {
				return goerr.Wrap(err, "failed to decode sequence")
			}
		}

		if err := tx.Create(memRef, &firestoreMemory{
			ID:        string(entry.ID),
			Seq:       seq.Next,
			Timestamp: entry.Timestamp,
			Query:     entry.Query,
			Response:  entry.Response,
		}); err != nil {
			return goerr.Wrap(err, "failed to create memory")
		}

		return tx.Set(seqRef, &firestoreSequence{Next: seq.Next + 1})
	})

	if status.Code(err) == codes.AlreadyExists {
		return goerr.Wrap(model.ErrDuplicateMemory, "failed to append memory", goerr.V("id", entry.ID))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to append memory", goerr.V("id", entry.ID))
	}

	return nil
}

func (r *Firestore) ListMemories(ctx context.Context) ([]*model.MemoryEntry, error) {
	iter := r.memories().OrderBy("Seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var entries []*model.MemoryEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories")
		}

		var m firestoreMemory
		if err := doc.DataTo(&m); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc", doc.Ref.ID))
		}

		entries = append(entries, &model.MemoryEntry{
			ID:        model.MemoryID(m.ID),
			Timestamp: m.Timestamp,
			Query:     m.Query,
			Response:  m.Response,
		})
	}

	return entries, nil
}

// CountMemories reads the sequence counter, which equals the number of
// appended entries because entries are never deleted.
func (r *Firestore) CountMemories(ctx context.Context) (int, error) {
	snap, err := r.sequence().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get sequence")
	}

	var seq firestoreSequence
	if err := snap.DataTo(&seq); err != nil {
		return 0, goerr.Wrap(err, "failed to decode sequence")
	}
	return int(seq.Next), nil
}
