package domain

import (
	"context"
	"time"
)

// StoredDocument is a content-addressed, chunk-compressed document. The ID is
// derived from the first 1KB of content only: it is a dedup heuristic, not a
// uniqueness or integrity guarantee.
type StoredDocument struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	UploadDate     time.Time      `json:"upload_date"`
	LastAccessed   time.Time      `json:"last_accessed"`
	Chunks         [][]byte       `json:"text_chunks"`
	ChunkCount     int            `json:"chunk_count"`
	OriginalSize   int64          `json:"original_size"`
	CompressedSize int64          `json:"compressed_size"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StoredConversation is a conversation persisted against a document. The
// document reference is a foreign key, not ownership: deleting the document
// cascades to its conversations.
type StoredConversation struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StoreResult is the discriminated outcome of a document store: either the
// document was stored under ID, or identical leading content already exists
// under a different filename and ID names the existing document.
type StoreResult struct {
	ID        string
	Duplicate bool
}

// DocumentInfo is the listing view of a stored document.
type DocumentInfo struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	UploadDate       time.Time `json:"upload_date"`
	LastAccessed     time.Time `json:"last_accessed"`
	SizeMB           float64   `json:"size_mb"`
	CompressionRatio float64   `json:"compression_ratio"`
}

// StorageStats aggregates storage usage against the soft quota.
type StorageStats struct {
	DocumentCount     int     `json:"document_count"`
	ConversationCount int     `json:"conversation_count"`
	TotalSizeMB       float64 `json:"total_size_mb"`
	CompressedSizeMB  float64 `json:"compressed_size_mb"`
	CompressionRatio  float64 `json:"compression_ratio"`
	StorageLimitMB    float64 `json:"storage_limit_mb"`
	UsagePercent      float64 `json:"usage_percent"`
}

// DocumentStore persists documents and their conversations. A miss returns
// (nil, nil); errors are reserved for storage faults. Read paths touch the
// document's last-accessed time.
type DocumentStore interface {
	StoreDocument(ctx context.Context, filename, text string, metadata map[string]any) (StoreResult, error)
	GetDocument(ctx context.Context, id string) (*StoredDocument, error)
	GetDocumentText(ctx context.Context, id string) (string, error)
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)

	StoreConversation(ctx context.Context, docID string, messages []Message) (string, error)
	GetConversation(ctx context.Context, docID string) ([]Message, error)
	UpdateConversation(ctx context.Context, docID string, messages []Message) error

	CleanupOldData(ctx context.Context) (int, error)
	StorageStats(ctx context.Context) (StorageStats, error)

	Close() error
}
