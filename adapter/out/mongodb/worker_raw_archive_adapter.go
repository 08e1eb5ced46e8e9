package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// =============================================================================
// MongoDB Raw Archive Adapter
// =============================================================================

const (
	collectionRawRecords = "raw_source_records"

	// payloads above this size are stored gzipped
	compressionThreshold = 1024
)

// RawArchiveAdapter implements out.RawArchive. One document per
// (connection, job, external id); re-delivery replaces it.
type RawArchiveAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.RawArchive = (*RawArchiveAdapter)(nil)

func NewRawArchiveAdapter(db *mongo.Database) *RawArchiveAdapter {
	return &RawArchiveAdapter{
		collection: db.Collection(collectionRawRecords),
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *RawArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "connection_id", Value: 1},
				{Key: "job", Value: 1},
				{Key: "external_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "archived_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type rawRecordDocument struct {
	ConnectionID string `bson:"connection_id"`
	Job          string `bson:"job"`
	ExternalID   string `bson:"external_id"`

	// JSON payload, gzipped when IsCompressed
	Payload      []byte `bson:"payload"`
	IsCompressed bool   `bson:"is_compressed"`
	OriginalSize int64  `bson:"original_size"`

	ArchivedAt time.Time `bson:"archived_at"`
}

func (a *RawArchiveAdapter) toDocument(connectionID string, job domain.JobKind, rec out.ArchivedRecord) (*rawRecordDocument, error) {
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, err
	}
	doc := &rawRecordDocument{
		ConnectionID: connectionID,
		Job:          string(job),
		ExternalID:   rec.ExternalID,
		Payload:      data,
		OriginalSize: int64(len(data)),
		ArchivedAt:   a.now().UTC(),
	}
	if len(data) > compressionThreshold {
		compressed, err := compress(data)
		if err != nil {
			return nil, err
		}
		doc.Payload = compressed
		doc.IsCompressed = true
	}
	return doc, nil
}

func (doc *rawRecordDocument) toRecord() (*out.ArchivedRecord, error) {
	data := doc.Payload
	if doc.IsCompressed {
		var err error
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}
	var payload out.RawRecord
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &out.ArchivedRecord{ExternalID: doc.ExternalID, Payload: payload}, nil
}

// =============================================================================
// Operations
// =============================================================================

// ArchivePage upserts the page's raw records in one unordered bulk write.
func (a *RawArchiveAdapter) ArchivePage(ctx context.Context, connectionID string, job domain.JobKind, records []out.ArchivedRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc, err := a.toDocument(connectionID, job, rec)
		if err != nil {
			return fmt.Errorf("failed to convert record %s: %w", rec.ExternalID, err)
		}

		filter := bson.M{"connection_id": connectionID, "job": string(job), "external_id": rec.ExternalID}
		model := mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(doc).
			SetUpsert(true)
		models = append(models, model)
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := a.collection.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to archive raw records: %w", err)
	}
	return nil
}

// Get returns one archived record, nil when absent.
func (a *RawArchiveAdapter) Get(ctx context.Context, connectionID string, job domain.JobKind, externalID string) (*out.ArchivedRecord, error) {
	var doc rawRecordDocument
	filter := bson.M{"connection_id": connectionID, "job": string(job), "external_id": externalID}
	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toRecord()
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
