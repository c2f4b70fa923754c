package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertMemoryEntry inserts or overwrites by id.
func (d *DB) UpsertMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	stored := entry.Clone()
	stored.Metadata.Timestamp = stored.Metadata.Timestamp.UTC()

	if err := d.execUpsert(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (d *DB) execUpsert(ctx context.Context, stored *store.MemoryEntry) error {
	var vectorValue any
	if len(stored.Embedding) > 0 {
		vectorValue = pgvector.NewVector(stored.Embedding)
	}

	stmt := `
		INSERT INTO memory_entry (id, content, user_id, conversation_id, role, ts, tokens, importance, embedding)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			content = EXCLUDED.content,
			user_id = EXCLUDED.user_id,
			conversation_id = EXCLUDED.conversation_id,
			role = EXCLUDED.role,
			ts = EXCLUDED.ts,
			tokens = EXCLUDED.tokens,
			importance = EXCLUDED.importance,
			embedding = EXCLUDED.embedding
	`

	_, err := d.db.ExecContext(ctx, stmt,
		stored.ID,
		stored.Content,
		nullableString(stored.Metadata.UserID),
		nullableString(stored.Metadata.ConversationID),
		string(stored.Metadata.Role),
		stored.Metadata.Timestamp,
		stored.Metadata.Tokens,
		stored.Metadata.Importance,
		vectorValue,
	)
	if err != nil {
		return store.NewStorageError("upsert memory entry", err)
	}
	return nil
}

// GetMemoryEntry fetches by id; a missing id is (nil, nil).
func (d *DB) GetMemoryEntry(ctx context.Context, id string) (*store.MemoryEntry, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, content, user_id, conversation_id, role, ts, tokens, importance, embedding
		FROM memory_entry
		WHERE id = `+placeholder(1), id)

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

// UpdateMemoryEntry fully replaces the entry with the same id. The vector
// index row is rewritten rather than updated in place: the previous row is
// journaled in memory, deleted, and the replacement inserted. The two
// statements are NOT atomic; a crash between them loses the entry. When
// the insert fails, the journaled row is re-inserted as compensation; if
// that also fails, the entry is gone and the error says so. Callers
// needing stronger guarantees must layer them outside the store.
func (d *DB) UpdateMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	journal, err := d.GetMemoryEntry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	if err := d.DeleteMemoryEntry(ctx, entry.ID); err != nil {
		return nil, err
	}

	stored := entry.Clone()
	stored.Metadata.Timestamp = stored.Metadata.Timestamp.UTC()

	insertErr := d.execUpsert(ctx, stored)
	if insertErr == nil {
		return stored, nil
	}

	if journal == nil {
		return nil, insertErr
	}

	slog.Warn("memory entry replace failed, restoring previous row",
		"id", entry.ID,
		"error", insertErr,
	)
	if restoreErr := d.execUpsert(ctx, journal); restoreErr != nil {
		return nil, errors.Wrapf(insertErr, "replace failed and restoring previous entry %s also failed: %v", entry.ID, restoreErr)
	}
	return nil, errors.Wrapf(insertErr, "replace failed, previous entry %s restored", entry.ID)
}

// DeleteMemoryEntry removes by id. Deleting a missing id succeeds silently,
// so RowsAffected is not inspected.
func (d *DB) DeleteMemoryEntry(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory_entry WHERE id = `+placeholder(1), id); err != nil {
		return store.NewStorageError("delete memory entry", err)
	}
	return nil
}

// FindMemoryEntriesByUser returns the user's entries ascending by timestamp.
func (d *DB) FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*store.MemoryEntry, error) {
	return d.findMemoryEntries(ctx, "user_id = "+placeholder(1), userID)
}

// FindMemoryEntriesByConversation returns the conversation's entries
// ascending by timestamp.
func (d *DB) FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*store.MemoryEntry, error) {
	return d.findMemoryEntries(ctx, "conversation_id = "+placeholder(1), conversationID)
}

func (d *DB) findMemoryEntries(ctx context.Context, filter string, arg any) ([]*store.MemoryEntry, error) {
	query := `
		SELECT id, content, user_id, conversation_id, role, ts, tokens, importance, embedding
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

// SemanticSearch runs approximate nearest-neighbor search through the
// ivfflat index. The <=> operator computes cosine distance; similarity is
// 1 - distance, clamped into [0,1] after scan. The query vector must match
// the dimension the vector column was created with.
func (d *DB) SemanticSearch(ctx context.Context, opts *store.SemanticSearchOptions) ([]*store.ScoredMemoryEntry, error) {
	if len(opts.Vector) != d.dim {
		return nil, store.NewDimensionMismatchError(d.dim, len(opts.Vector))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	where, args := []string{"embedding IS NOT NULL"}, []any{}
	if opts.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *opts.UserID)
	}
	if opts.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *opts.ConversationID)
	}

	query := `
		SELECT
			id, content, user_id, conversation_id, role, ts, tokens, importance, embedding,
			1 - (embedding <=> ` + placeholder(len(args)+1) + `) AS score
		FROM memory_entry
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> ` + placeholder(len(args)+2) + `
		LIMIT ` + placeholder(len(args)+3)

	queryVector := pgvector.NewVector(opts.Vector)
	args = append(args, queryVector, queryVector, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStorageError("semantic search", err)
	}
	defer rows.Close()

	results := []*store.ScoredMemoryEntry{}
	for rows.Next() {
		scored, err := scanScoredMemoryEntry(rows.Scan)
		if err != nil {
			if store.IsCorruptDataError(err) {
				return nil, err
			}
			return nil, store.NewStorageError("scan semantic search result", err)
		}
		scored.Score = store.ClampScore(scored.Score)
		results = append(results, scored)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError("semantic search", err)
	}

	return results, nil
}

func scanMemoryEntry(scan func(dest ...any) error) (*store.MemoryEntry, error) {
	var entry store.MemoryEntry
	var userID, conversationID sql.NullString
	var roleTag string
	var vector *pgvector.Vector

	if err := scan(
		&entry.ID,
		&entry.Content,
		&userID,
		&conversationID,
		&roleTag,
		&entry.Metadata.Timestamp,
		&entry.Metadata.Tokens,
		&entry.Metadata.Importance,
		&vector,
	); err != nil {
		return nil, err
	}

	entry.Metadata.UserID = userID.String
	entry.Metadata.ConversationID = conversationID.String
	entry.Metadata.Timestamp = entry.Metadata.Timestamp.UTC()

	role, err := store.ParseRole(roleTag)
	if err != nil {
		return nil, store.NewCorruptDataError(entry.ID, "role", err)
	}
	entry.Metadata.Role = role

	if vector != nil {
		entry.Embedding = vector.Slice()
	}

	return &entry, nil
}

func scanScoredMemoryEntry(scan func(dest ...any) error) (*store.ScoredMemoryEntry, error) {
	var scored store.ScoredMemoryEntry
	var entry store.MemoryEntry
	var userID, conversationID sql.NullString
	var roleTag string
	var vector pgvector.Vector

	if err := scan(
		&entry.ID,
		&entry.Content,
		&userID,
		&conversationID,
		&roleTag,
		&entry.Metadata.Timestamp,
		&entry.Metadata.Tokens,
		&entry.Metadata.Importance,
		&vector,
		&scored.Score,
	); err != nil {
		return nil, err
	}

	entry.Metadata.UserID = userID.String
	entry.Metadata.ConversationID = conversationID.String
	entry.Metadata.Timestamp = entry.Metadata.Timestamp.UTC()

	role, err := store.ParseRole(roleTag)
	if err != nil {
		return nil, store.NewCorruptDataError(entry.ID, "role", err)
	}
	entry.Metadata.Role = role
	entry.Embedding = vector.Slice()

	scored.Entry = &entry
	return &scored, nil
}
