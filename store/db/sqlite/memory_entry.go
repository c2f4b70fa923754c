package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// tsFormat is RFC3339 with a fixed-width nanosecond fraction. Timestamps are
// always written in UTC, so the rendered strings sort lexicographically in
// chronological order and `ORDER BY ts` needs no parsing in SQL.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

// float32ArrayToBLOB serializes a vector as concatenated little-endian
// 4-byte floats.
func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Array is the inverse of float32ArrayToBLOB. A length that is
// not a multiple of four bytes means the row was corrupted.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid BLOB length: %d is not a multiple of 4", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertMemoryEntry inserts or overwrites by id in one statement; there is
// no uniqueness violation to handle.
func (d *DB) UpsertMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	stored := entry.Clone()
	stored.Metadata.Timestamp = stored.Metadata.Timestamp.UTC()

	var vectorBLOB []byte
	if len(stored.Embedding) > 0 {
		vectorBLOB = float32ArrayToBLOB(stored.Embedding)
	}

	stmt := `INSERT INTO memory_entry (id, content, user_id, conversation_id, role, ts, tokens, importance, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			user_id = excluded.user_id,
			conversation_id = excluded.conversation_id,
			role = excluded.role,
			ts = excluded.ts,
			tokens = excluded.tokens,
			importance = excluded.importance,
			embedding = excluded.embedding`

	_, err := d.db.ExecContext(ctx, stmt,
		stored.ID,
		stored.Content,
		nullableString(stored.Metadata.UserID),
		nullableString(stored.Metadata.ConversationID),
		string(stored.Metadata.Role),
		stored.Metadata.Timestamp.Format(tsFormat),
		stored.Metadata.Tokens,
		stored.Metadata.Importance,
		vectorBLOB,
	)
	if err != nil {
		return nil, store.NewStorageError("upsert memory entry", err)
	}

	return stored, nil
}

// GetMemoryEntry fetches by id; a missing id is (nil, nil).
func (d *DB) GetMemoryEntry(ctx context.Context, id string) (*store.MemoryEntry, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, content, user_id, conversation_id, role, ts, tokens, importance, embedding
		FROM memory_entry
		WHERE id = ?`, id)

	entry, err := scanMemoryEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if store.IsCorruptDataError(err) {
			return nil, err
		}
		return nil, store.NewStorageError("get memory entry", err)
	}
	return entry, nil
}

// UpdateMemoryEntry fully replaces the entry with the same id. SQLite has a
// native atomic upsert, so replace shares the insert path and has none of
// the delete-then-add gap of the columnar driver. A missing id is created.
func (d *DB) UpdateMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	return d.UpsertMemoryEntry(ctx, entry)
}

// DeleteMemoryEntry removes by id. Deleting a missing id succeeds silently,
// so RowsAffected is not inspected.
func (d *DB) DeleteMemoryEntry(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory_entry WHERE id = ?`, id); err != nil {
		return store.NewStorageError("delete memory entry", err)
	}
	return nil
}

// FindMemoryEntriesByUser returns the user's entries ascending by
// timestamp. The ts column is fixed-width UTC text, so the string sort is
// the chronological sort.
func (d *DB) FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*store.MemoryEntry, error) {
	return d.findMemoryEntries(ctx, "user_id = ?", userID)
}

// FindMemoryEntriesByConversation returns the conversation's entries
// ascending by timestamp.
func (d *DB) FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*store.MemoryEntry, error) {
	return d.findMemoryEntries(ctx, "conversation_id = ?", conversationID)
}

func (d *DB) findMemoryEntries(ctx context.Context, filter string, arg any) ([]*store.MemoryEntry, error) {
	query := `SELECT id, content, user_id, conversation_id, role, ts, tokens, importance, embedding
		FROM memory_entry
		WHERE ` + filter + `
		ORDER BY ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, store.NewStorageError("find memory entries", err)
	}
	defer rows.Close()

	list := []*store.MemoryEntry{}
	for rows.Next() {
		entry, err := scanMemoryEntry(rows.Scan)
		if err != nil {
			if store.IsCorruptDataError(err) {
				return nil, err
			}
			return nil, store.NewStorageError("scan memory entry", err)
		}
		list = append(list, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError("find memory entries", err)
	}

	return list, nil
}

// SemanticSearch scores every stored vector matching the filters with
// Go-side cosine similarity, then ranks and truncates. The filters are
// pushed into SQL purely as an optimization; the result set is the one an
// in-memory filter would produce.
func (d *DB) SemanticSearch(ctx context.Context, opts *store.SemanticSearchOptions) ([]*store.ScoredMemoryEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	where, args := []string{"embedding IS NOT NULL"}, []any{}
	if opts.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *opts.UserID)
	}
	if opts.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *opts.ConversationID)
	}

	query := `SELECT id, content, user_id, conversation_id, role, ts, tokens, importance, embedding
		FROM memory_entry
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStorageError("semantic search", err)
	}
	defer rows.Close()

	results := []*store.ScoredMemoryEntry{}
	for rows.Next() {
		entry, err := scanMemoryEntry(rows.Scan)
		if err != nil {
			if store.IsCorruptDataError(err) {
				return nil, err
			}
			return nil, store.NewStorageError("scan semantic search result", err)
		}

		// Reported scores stay in [0,1]; negative cosine flattens to zero.
		results = append(results, &store.ScoredMemoryEntry{
			Entry: entry,
			Score: store.ClampScore(store.CosineSimilarity(opts.Vector, entry.Embedding)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError("semantic search", err)
	}

	// Rank by similarity (descending) and return top-k.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// scanMemoryEntry decodes one row. Scan-level failures come back raw so the
// caller can classify them; decode failures come back as CorruptDataError.
func scanMemoryEntry(scan func(dest ...any) error) (*store.MemoryEntry, error) {
	var entry store.MemoryEntry
	var userID, conversationID sql.NullString
	var roleTag, tsText string
	var vectorBLOB []byte

	if err := scan(
		&entry.ID,
		&entry.Content,
		&userID,
		&conversationID,
		&roleTag,
		&tsText,
		&entry.Metadata.Tokens,
		&entry.Metadata.Importance,
		&vectorBLOB,
	); err != nil {
		return nil, err
	}

	entry.Metadata.UserID = userID.String
	entry.Metadata.ConversationID = conversationID.String

	role, err := store.ParseRole(roleTag)
	if err != nil {
		return nil, store.NewCorruptDataError(entry.ID, "role", err)
	}
	entry.Metadata.Role = role

	ts, err := time.Parse(time.RFC3339Nano, tsText)
	if err != nil {
		return nil, store.NewCorruptDataError(entry.ID, "ts", err)
	}
	entry.Metadata.Timestamp = ts.UTC()

	if vectorBLOB != nil {
		entry.Embedding, err = blobToFloat32Array(vectorBLOB)
		if err != nil {
			return nil, store.NewCorruptDataError(entry.ID, "embedding", err)
		}
	}

	return &entry, nil
}
