// Package store persists document chunks and their embeddings in
// SQLite, using sqlite-vec for nearest-neighbor search when the
// extension is available.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/embed"
	"github.com/haowjy/ragstream-go/ingest"
)

// ErrNotFound is returned when a chunk or config key does not exist.
var ErrNotFound = errors.New("store: not found")

// Neighbor is a vector search hit. Distance is cosine distance, so
// relevance is 1 - Distance.
type Neighbor struct {
	ChunkID  string
	Distance float64
}

// Index is the chunk and vector store. Safe for concurrent use; all
// synchronization is delegated to database/sql.
type Index struct {
	db     *sql.DB
	dims   int
	logger *zap.Logger

	// vecAvailable reports whether sqlite-vec vec0 tables work in this
	// build. When false, search falls back to an exact cosine scan.
	vecAvailable bool
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithIndexLogger sets the logger. Defaults to a no-op logger.
func WithIndexLogger(logger *zap.Logger) IndexOption {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// Open opens (creating if needed) the index database at path. dims is
// the embedding dimensionality and must match the embedding engine.
func Open(path string, dims int, opts ...IndexOption) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("store: invalid embedding dimensions %d", dims)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	ix := &Index{db: db, dims: dims, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ix)
	}

	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id    TEXT PRIMARY KEY,
		doc_id      TEXT NOT NULL,
		source_uri  TEXT NOT NULL,
		text        TEXT NOT NULL,
		language    TEXT NOT NULL DEFAULT 'en',
		chunk_index INTEGER NOT NULL DEFAULT 0,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
	CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := ix.db.Exec(schema); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}

	vecSchema := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(embedding float[%d] distance_metric=cosine, chunk_id TEXT)",
		ix.dims,
	)
	if _, err := ix.db.Exec(vecSchema); err != nil {
		ix.logger.Warn("sqlite-vec unavailable, vector search will use exact scan", zap.Error(err))
		fallback := `
		CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id  TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		);`
		if _, err := ix.db.Exec(fallback); err != nil {
			return fmt.Errorf("store: creating embeddings table: %w", err)
		}
		return nil
	}
	ix.vecAvailable = true
	return nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Ping verifies the database is reachable.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.db.PingContext(ctx)
}

// Upsert stores vectors and their chunk metadata, replacing existing
// entries with the same chunk ID.
func (ix *Index) Upsert(ctx context.Context, vectors []embed.Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning upsert: %w", err)
	}
	defer tx.Rollback()

	for _, v := range vectors {
		if len(v.Embedding) != ix.dims {
			return fmt.Errorf("store: vector %s has %d dimensions, index expects %d", v.ID, len(v.Embedding), ix.dims)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (chunk_id, doc_id, source_uri, text, language, chunk_index, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(chunk_id) DO UPDATE SET
				doc_id = excluded.doc_id,
				source_uri = excluded.source_uri,
				text = excluded.text,
				language = excluded.language,
				chunk_index = excluded.chunk_index,
				updated_at = CURRENT_TIMESTAMP`,
			v.ID, v.Metadata.DocID, v.Metadata.SourceURI, v.Metadata.Text,
			v.Metadata.Language, v.Metadata.ChunkIndex,
		)
		if err != nil {
			return fmt.Errorf("store: upserting chunk %s: %w", v.ID, err)
		}
		if err := ix.upsertEmbedding(ctx, tx, v.ID, v.Embedding); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing upsert of %d vectors: %w", len(vectors), err)
	}
	ix.logger.Debug("upserted vectors", zap.Int("count", len(vectors)))
	return nil
}

func (ix *Index) upsertEmbedding(ctx context.Context, tx *sql.Tx, chunkID string, embedding []float32) error {
	blob := encodeVector(embedding)

	if !ix.vecAvailable {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
			chunkID, blob,
		)
		if err != nil {
			return fmt.Errorf("store: upserting embedding %s: %w", chunkID, err)
		}
		return nil
	}

	// vec0 deletes go through the rowid.
	var rowid int64
	err := tx.QueryRowContext(ctx, "SELECT rowid FROM chunks_vec WHERE chunk_id = ?", chunkID).Scan(&rowid)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_vec WHERE rowid = ?", rowid); err != nil {
			return fmt.Errorf("store: replacing embedding %s: %w", chunkID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("store: looking up embedding %s: %w", chunkID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chunks_vec (embedding, chunk_id) VALUES (?, ?)",
		blob, chunkID,
	); err != nil {
		return fmt.Errorf("store: inserting embedding %s: %w", chunkID, err)
	}
	return nil
}

// WriteBatch implements embed.BatchSink.
func (ix *Index) WriteBatch(ctx context.Context, vectors []embed.Vector) error {
	return ix.Upsert(ctx, vectors)
}

// Search returns the chunk IDs nearest to the query embedding, closest
// first.
func (ix *Index) Search(ctx context.Context, embedding []float32, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		limit = 5
	}
	if len(embedding) != ix.dims {
		return nil, fmt.Errorf("store: query has %d dimensions, index expects %d", len(embedding), ix.dims)
	}
	if ix.vecAvailable {
		return ix.searchVec(ctx, embedding, limit)
	}
	return ix.searchScan(ctx, embedding, limit)
}

func (ix *Index) searchVec(ctx context.Context, embedding []float32, limit int) ([]Neighbor, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT chunk_id, distance
		FROM chunks_vec
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?`,
		encodeVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: vector search: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ChunkID, &n.Distance); err != nil {
			return nil, fmt.Errorf("store: scanning search hit: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// searchScan is the exact fallback used when sqlite-vec is missing.
func (ix *Index) searchScan(ctx context.Context, embedding []float32, limit int) ([]Neighbor, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT chunk_id, embedding FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("store: embedding scan: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("store: scanning embedding: %w", err)
		}
		candidate := decodeVector(blob)
		sim, err := embed.CosineSimilarity(embedding, candidate)
		if err != nil {
			ix.logger.Warn("skipping embedding with mismatched dimensions", zap.String("chunk_id", chunkID))
			continue
		}
		neighbors = append(neighbors, Neighbor{ChunkID: chunkID, Distance: 1 - sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Distance < neighbors[j].Distance })
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// GetChunk returns the stored chunk for chunkID.
func (ix *Index) GetChunk(ctx context.Context, chunkID string) (ingest.Chunk, error) {
	var c ingest.Chunk
	err := ix.db.QueryRowContext(ctx, `
		SELECT chunk_id, doc_id, source_uri, text, language, chunk_index
		FROM chunks WHERE chunk_id = ?`, chunkID,
	).Scan(&c.ChunkID, &c.DocID, &c.SourceURI, &c.Text, &c.Language, &c.ChunkIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.Chunk{}, fmt.Errorf("store: chunk %s: %w", chunkID, ErrNotFound)
	} else if err != nil {
		return ingest.Chunk{}, fmt.Errorf("store: reading chunk %s: %w", chunkID, err)
	}
	return c, nil
}

// DeleteDocument removes all chunks and embeddings for a document.
func (ix *Index) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning delete: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT chunk_id FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("store: listing chunks for %s: %w", docID, err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()

	for _, id := range chunkIDs {
		if ix.vecAvailable {
			var rowid int64
			err := tx.QueryRowContext(ctx, "SELECT rowid FROM chunks_vec WHERE chunk_id = ?", id).Scan(&rowid)
			if err == nil {
				if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_vec WHERE rowid = ?", rowid); err != nil {
					return fmt.Errorf("store: deleting embedding %s: %w", id, err)
				}
			} else if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("store: looking up embedding %s: %w", id, err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", id); err != nil {
				return fmt.Errorf("store: deleting embedding %s: %w", id, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("store: deleting chunks for %s: %w", docID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing delete of %s: %w", docID, err)
	}
	ix.logger.Info("deleted document", zap.String("doc_id", docID), zap.Int("chunks", len(chunkIDs)))
	return nil
}

// GetConfig returns the config value for key.
func (ix *Index) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := ix.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: config %s: %w", key, ErrNotFound)
	} else if err != nil {
		return "", fmt.Errorf("store: reading config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a config value, replacing any existing one.
func (ix *Index) SetConfig(ctx context.Context, key, value string) error {
	_, err := ix.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("store: writing config %s: %w", key, err)
	}
	return nil
}

// encodeVector packs a float32 slice into sqlite-vec's little-endian
// blob layout.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}
