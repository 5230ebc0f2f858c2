// Package archive stores JSON snapshots of a ledger in object storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/google/uuid"
)

// DocumentVersion is written into every archived document.
const DocumentVersion = 1

const contentType = "application/json"

// Document is the archived form of a ledger snapshot.
type Document struct {
	Version     int                        `json:"version"`
	GeneratedAt time.Time                  `json:"generated_at"`
	User        *domain.UserProfile        `json:"user,omitempty"`
	Records     []domain.TransactionRecord `json:"records"`
	Totals      aggregate.Totals           `json:"totals"`
	Categories  []aggregate.CategoryAmount `json:"categories"`
	Daily       []aggregate.DailyPoint     `json:"daily"`
	Expenses    aggregate.Stats            `json:"expenses"`
}

// Archiver writes snapshots under gs://{bucket}/{prefix}/YYYY/MM/DD/.
type Archiver struct {
	store  ObjectStore
	bucket string
	prefix string

	now   func() time.Time
	newID func() string
}

// NewArchiver creates an archiver writing to bucket under prefix.
// Archive and Fetch log through the logger carried by their context.
func NewArchiver(store ObjectStore, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	return &Archiver{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Archive uploads snap and its summary and returns the object's gs:// URI.
func (a *Archiver) Archive(ctx context.Context, snap ledger.Snapshot, sum aggregate.Summary) (string, error) {
	log := logger.FromContext(ctx)
	at := a.now().UTC()
	doc := Document{
		Version:     DocumentVersion,
		GeneratedAt: at,
		User:        snap.User,
		Records:     snap.Records,
		Totals:      sum.Totals,
		Categories:  sum.Categories,
		Daily:       sum.Daily,
		Expenses:    sum.Expenses,
	}
	if doc.Records == nil {
		doc.Records = []domain.TransactionRecord{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	userID := ""
	if snap.User != nil {
		userID = snap.User.ID
	}
	object := ObjectName(a.prefix, at, userID, a.newID())

	if err := a.store.Put(ctx, a.bucket, object, data, contentType); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	uri := "gs://" + a.bucket + "/" + object
	log.Info().
		Str("uri", uri).
		Int("records", len(doc.Records)).
		Int("bytes", len(data)).
		Msg("Snapshot archived")
	return uri, nil
}

// Fetch downloads and decodes an archived snapshot.
func (a *Archiver) Fetch(ctx context.Context, uri string) (Document, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return Document{}, err
	}

	data, err := a.store.Get(ctx, bucket, object)
	if err != nil {
		return Document{}, fmt.Errorf("download snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", uri, err)
	}
	if doc.Version < 1 || doc.Version > DocumentVersion {
		return Document{}, fmt.Errorf("snapshot %s has unsupported version %d", uri, doc.Version)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("uri", uri).
		Int("records", len(doc.Records)).
		Msg("Snapshot fetched")
	return doc, nil
}

// ObjectName builds "{prefix}/YYYY/MM/DD/{user}-{id}.json".
// An empty user becomes "anonymous".
func ObjectName(prefix string, at time.Time, userID, id string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return path.Join(prefix, at.UTC().Format("2006/01/02"), userID+"-"+id+".json")
}

// ParseURI splits gs://bucket/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
