package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.DocumentStore on SQLite for sessions that
// need documents to survive a restart.
type SQLiteStore struct {
	db           *sql.DB
	ttlDays      int
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

func NewSQLiteStore(dbPath string, cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.TTLDays < 0 {
		cfg.TTLDays = DefaultTTLDays
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}

	store := &SQLiteStore{
		db:           db,
		ttlDays:      cfg.TTLDays,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       lgr,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id              TEXT PRIMARY KEY,
		filename        TEXT NOT NULL,
		upload_date     DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_accessed   DATETIME DEFAULT CURRENT_TIMESTAMP,
		chunk_count     INTEGER DEFAULT 0,
		original_size   INTEGER DEFAULT 0,
		compressed_size INTEGER DEFAULT 0,
		metadata        TEXT
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		data        BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(document_id, seq);

	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		messages    TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_doc ON conversations(document_id, updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) StoreDocument(ctx context.Context, filename, text string, metadata map[string]any) (domain.StoreResult, error) {
	id := GenerateDocumentID(text)

	var existingName string
	err := s.db.QueryRowContext(ctx,
		`SELECT filename FROM documents WHERE id = ?`, id,
	).Scan(&existingName)
	if err != nil && err != sql.ErrNoRows {
		return domain.StoreResult{}, err
	}
	if err == nil && existingName != filename {
		return domain.StoreResult{ID: id, Duplicate: true}, nil
	}

	chunks := ChunkWords(text, s.chunkSize, s.chunkOverlap)
	compressed := make([][]byte, 0, len(chunks))
	var compressedSize int64
	for _, chunk := range chunks {
		data, cerr := Compress(chunk)
		if cerr != nil {
			return domain.StoreResult{}, fmt.Errorf("store %s: %w", filename, cerr)
		}
		compressed = append(compressed, data)
		compressedSize += int64(len(data))
	}

	metaJSON, merr := json.Marshal(metadata)
	if merr != nil {
		return domain.StoreResult{}, fmt.Errorf("store %s: %w", filename, merr)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreResult{}, err
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, filename, upload_date, last_accessed, chunk_count, original_size, compressed_size, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, filename, now, now, len(chunks), int64(len(text)), compressedSize, string(metaJSON),
	); err != nil {
		return domain.StoreResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return domain.StoreResult{}, err
	}
	for seq, data := range compressed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (document_id, seq, data) VALUES (?, ?, ?)`,
			id, seq, data,
		); err != nil {
			return domain.StoreResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.StoreResult{}, err
	}

	s.logger.Info("document stored", "id", id, "filename", filename, "chunks", len(chunks))
	return domain.StoreResult{ID: id}, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*domain.StoredDocument, error) {
	var doc domain.StoredDocument
	var metaJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, upload_date, last_accessed, chunk_count, original_size, compressed_size, metadata
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.UploadDate, &doc.LastAccessed,
		&doc.ChunkCount, &doc.OriginalSize, &doc.CompressedSize, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("document %s metadata: %w", id, err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM chunks WHERE document_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc.Chunks = append(doc.Chunks, data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	doc.LastAccessed = time.Now()
	_, _ = s.db.ExecContext(ctx,
		`UPDATE documents SET last_accessed = ? WHERE id = ?`, doc.LastAccessed, id,
	)
	return &doc, nil
}

func (s *SQLiteStore) GetDocumentText(ctx context.Context, id string) (string, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", nil
	}
	return joinChunks(doc.Chunks)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, upload_date, last_accessed, original_size, compressed_size
		 FROM documents ORDER BY last_accessed DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []domain.DocumentInfo
	for rows.Next() {
		var info domain.DocumentInfo
		var originalSize, compressedSize int64
		if err := rows.Scan(&info.ID, &info.Filename, &info.UploadDate, &info.LastAccessed,
			&originalSize, &compressedSize); err != nil {
			return nil, err
		}
		info.SizeMB = float64(originalSize) / (1024 * 1024)
		info.CompressionRatio = 1
		if compressedSize > 0 {
			info.CompressionRatio = float64(originalSize) / float64(compressedSize)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	// Foreign keys are not enforced by default, cascade by hand.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE document_id = ?`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) StoreConversation(ctx context.Context, docID string, messages []domain.Message) (string, error) {
	payload, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("conversation for %s: %w", docID, err)
	}

	convID := uuid.NewString()
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, document_id, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		convID, docID, string(payload), now, now,
	)
	if err != nil {
		return "", err
	}
	return convID, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, docID string) ([]domain.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversations WHERE document_id = ?
		 ORDER BY updated_at DESC LIMIT 1`, docID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return nil, fmt.Errorf("conversation for %s: %w", docID, err)
	}
	return messages, nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, docID string, messages []domain.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("conversation for %s: %w", docID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET messages = ?, updated_at = ?
		 WHERE id = (SELECT id FROM conversations WHERE document_id = ? ORDER BY updated_at DESC LIMIT 1)`,
		string(payload), time.Now(), docID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.StoreConversation(ctx, docID, messages)
	}
	return err
}

func (s *SQLiteStore) CleanupOldData(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -s.ttlDays)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE last_accessed < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range expired {
		if _, err := s.DeleteDocument(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		s.logger.Info("ttl sweep removed documents", "count", len(expired), "ttl_days", s.ttlDays)
	}
	return len(expired), nil
}

func (s *SQLiteStore) StorageStats(ctx context.Context) (domain.StorageStats, error) {
	var docs, convs int
	var totalSize, compressedSize sql.NullInt64

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(original_size), SUM(compressed_size) FROM documents`,
	).Scan(&docs, &totalSize, &compressedSize); err != nil {
		return domain.StorageStats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations`,
	).Scan(&convs); err != nil {
		return domain.StorageStats{}, err
	}

	return buildStats(docs, convs, totalSize.Int64, compressedSize.Int64), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
