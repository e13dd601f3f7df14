package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex on the chunks table.
type vectorIndex struct {
	store *Store

	// mu serialises writers so seq values are strictly increasing.
	mu      sync.Mutex
	lastSeq int64
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert replaces every chunk of docName in a single transaction.
func (v *vectorIndex) Upsert(ctx context.Context, docName string, entries []domain.IndexEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dim, err := v.dimension(ctx, tx, docName)
	if err != nil {
		return err
	}
	if _, ok := vector.CheckDimensions(entries, dim); !ok {
		return fmt.Errorf("%w: embedding dimension mismatch for %s (index uses %d)",
			domain.ErrInvalidInput, docName, dim)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_name = ?", docName); err != nil {
		return unavailable("clearing chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, doc_name, position, page_from, page_to, content, embedding, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return unavailable("preparing statement", err)
	}
	defer stmt.Close()

	seq := v.nextSeq()
	for _, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, c.ID, docName, c.Position, c.PageFrom, c.PageTo,
			c.Content, float32SliceToBytes(e.Embedding), seq); err != nil {
			return unavailable("saving chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing transaction", err)
	}
	return nil
}

// Search scans every chunk and returns the k most similar.
// The scan is a single statement, so it reads one consistent snapshot.
func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT id, doc_name, position, page_from, page_to, content, embedding, seq
		FROM chunks ORDER BY seq, position
	`)
	if err != nil {
		return nil, unavailable("querying chunks", err)
	}
	defer rows.Close()

	var cands []vector.Candidate
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		var seq int64
		if err := rows.Scan(&c.ID, &c.DocName, &c.Position, &c.PageFrom, &c.PageTo,
			&c.Content, &blob, &seq); err != nil {
			return nil, unavailable("scanning chunk", err)
		}
		emb := bytesToFloat32Slice(blob)
		if len(emb) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, index uses %d",
				domain.ErrInvalidInput, len(query), len(emb))
		}
		cands = append(cands, vector.Candidate{
			Hit: domain.VectorHit{Chunk: c, Similarity: vector.Cosine(query, emb)},
			Seq: seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating chunks", err)
	}

	return vector.TopK(cands, k), nil
}

// Delete removes every chunk of docName.
func (v *vectorIndex) Delete(ctx context.Context, docName string) error {
	if _, err := v.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_name = ?", docName); err != nil {
		return unavailable("deleting chunks", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the database.
func (v *vectorIndex) Close() error {
	return nil
}

// dimension returns the embedding length used by chunks of other documents,
// or 0 when there are none.
func (v *vectorIndex) dimension(ctx context.Context, tx *sql.Tx, docName string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT length(embedding) FROM chunks WHERE doc_name <> ? LIMIT 1", docName).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("reading dimension", err)
	}
	return n / 4, nil
}

func (v *vectorIndex) nextSeq() int64 {
	seq := time.Now().UnixNano()
	if seq <= v.lastSeq {
		seq = v.lastSeq + 1
	}
	v.lastSeq = seq
	return seq
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, op, err)
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
