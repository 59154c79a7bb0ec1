package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"
	"docchat/internal/metrics"
)

const (
	DefaultTTLDays = 30

	// Soft quota the usage percentage is reported against. Nothing is
	// rejected at the limit.
	storageQuotaMB = 50
)

// GenerateDocumentID fingerprints the first 1KB of content as a short hex
// string. Two documents sharing their first kilobyte collide on purpose:
// the id is a dedup heuristic, not a uniqueness guarantee.
func GenerateDocumentID(content string) string {
	sample := content
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	sum := sha256.Sum256([]byte(sample))
	return hex.EncodeToString(sum[:])[:16]
}

// Manager is the in-memory DocumentStore. All state is session scoped and
// guarded by a single mutex.
type Manager struct {
	mu            sync.Mutex
	documents     map[string]*domain.StoredDocument
	conversations map[string]*domain.StoredConversation
	ttlDays       int
	chunkSize     int
	chunkOverlap  int
	logger        *slog.Logger
}

type Config struct {
	TTLDays      int
	ChunkSize    int
	ChunkOverlap int
	Logger       *slog.Logger
}

func NewManager(cfg Config) *Manager {
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
	return &Manager{
		documents:     make(map[string]*domain.StoredDocument),
		conversations: make(map[string]*domain.StoredConversation),
		ttlDays:       cfg.TTLDays,
		chunkSize:     cfg.ChunkSize,
		chunkOverlap:  cfg.ChunkOverlap,
		logger:        lgr,
	}
}

// StoreDocument chunks, compresses, and stores text under its content id.
// When the id already exists under a different filename the result signals a
// duplicate carrying the existing id; the same filename re-stores in place.
func (m *Manager) StoreDocument(ctx context.Context, filename, text string, metadata map[string]any) (domain.StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := GenerateDocumentID(text)
	if existing, ok := m.documents[id]; ok && existing.Filename != filename {
		m.logger.Info("duplicate document content", "id", id, "existing", existing.Filename, "incoming", filename)
		return domain.StoreResult{ID: id, Duplicate: true}, nil
	}

	chunks := ChunkWords(text, m.chunkSize, m.chunkOverlap)
	compressed := make([][]byte, 0, len(chunks))
	var compressedSize int64
	for _, chunk := range chunks {
		data, err := Compress(chunk)
		if err != nil {
			return domain.StoreResult{}, fmt.Errorf("store %s: %w", filename, err)
		}
		compressed = append(compressed, data)
		compressedSize += int64(len(data))
	}

	now := time.Now()
	m.documents[id] = &domain.StoredDocument{
		ID:             id,
		Filename:       filename,
		UploadDate:     now,
		LastAccessed:   now,
		Chunks:         compressed,
		ChunkCount:     len(chunks),
		OriginalSize:   int64(len(text)),
		CompressedSize: compressedSize,
		Metadata:       metadata,
	}

	metrics.DocumentsStored.Inc()
	metrics.StoredDocuments.Set(int64(len(m.documents)))
	m.logger.Info("document stored", "id", id, "filename", filename, "chunks", len(chunks))
	return domain.StoreResult{ID: id}, nil
}

// GetDocument returns a document by id, touching its last-accessed time. A
// miss returns (nil, nil).
func (m *Manager) GetDocument(ctx context.Context, id string) (*domain.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getDocumentLocked(id), nil
}

func (m *Manager) getDocumentLocked(id string) *domain.StoredDocument {
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.LastAccessed = time.Now()
	return doc
}

// GetDocumentText decompresses every chunk and joins them with single
// spaces. Original newlines and paragraph breaks are not preserved.
func (m *Manager) GetDocumentText(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.getDocumentLocked(id)
	if doc == nil {
		return "", nil
	}
	return joinChunks(doc.Chunks)
}

func joinChunks(chunks [][]byte) (string, error) {
	parts := make([]string, 0, len(chunks))
	for i, data := range chunks {
		text, err := Decompress(data)
		if err != nil {
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}

// ListDocuments returns listing views sorted most recently accessed first.
func (m *Manager) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]domain.DocumentInfo, 0, len(m.documents))
	for _, doc := range m.documents {
		infos = append(infos, documentInfo(doc))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastAccessed.After(infos[j].LastAccessed)
	})
	return infos, nil
}

func documentInfo(doc *domain.StoredDocument) domain.DocumentInfo {
	ratio := 1.0
	if doc.CompressedSize > 0 {
		ratio = float64(doc.OriginalSize) / float64(doc.CompressedSize)
	}
	return domain.DocumentInfo{
		ID:               doc.ID,
		Filename:         doc.Filename,
		UploadDate:       doc.UploadDate,
		LastAccessed:     doc.LastAccessed,
		SizeMB:           float64(doc.OriginalSize) / (1024 * 1024),
		CompressionRatio: ratio,
	}
}

// DeleteDocument removes a document and cascades to every conversation
// referencing it. Returns false when the id is unknown.
func (m *Manager) DeleteDocument(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteDocumentLocked(id), nil
}

func (m *Manager) deleteDocumentLocked(id string) bool {
	if _, ok := m.documents[id]; !ok {
		return false
	}
	delete(m.documents, id)

	for convID, conv := range m.conversations {
		if conv.DocumentID == id {
			delete(m.conversations, convID)
		}
	}
	metrics.StoredDocuments.Set(int64(len(m.documents)))
	return true
}

// StoreConversation persists a new conversation for a document and returns
// its id.
func (m *Manager) StoreConversation(ctx context.Context, docID string, messages []domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeConversationLocked(docID, messages), nil
}

func (m *Manager) storeConversationLocked(docID string, messages []domain.Message) string {
	now := time.Now()
	convID := uuid.NewString()
	m.conversations[convID] = &domain.StoredConversation{
		ID:         convID,
		DocumentID: docID,
		Messages:   messages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return convID
}

// GetConversation returns the most recently updated conversation for a
// document, or nil when none exists.
func (m *Manager) GetConversation(ctx context.Context, docID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.StoredConversation
	for _, conv := range m.conversations {
		if conv.DocumentID != docID {
			continue
		}
		if latest == nil || conv.UpdatedAt.After(latest.UpdatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Messages, nil
}

// UpdateConversation replaces the messages of an existing conversation for
// the document, or creates one when none exists.
func (m *Manager) UpdateConversation(ctx context.Context, docID string, messages []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conv := range m.conversations {
		if conv.DocumentID == docID {
			conv.Messages = messages
			conv.UpdatedAt = time.Now()
			return nil
		}
	}
	m.storeConversationLocked(docID, messages)
	return nil
}

// CleanupOldData removes every document whose last-accessed time is older
// than the TTL, cascading to conversations, and returns the removed count.
func (m *Manager) CleanupOldData(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -m.ttlDays)

	var expired []string
	for id, doc := range m.documents {
		if doc.LastAccessed.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.deleteDocumentLocked(id)
		metrics.DocumentsEvicted.Inc()
	}
	if len(expired) > 0 {
		m.logger.Info("ttl sweep removed documents", "count", len(expired), "ttl_days", m.ttlDays)
	}
	return len(expired), nil
}

// StorageStats aggregates counts and sizes against the soft quota.
func (m *Manager) StorageStats(ctx context.Context) (domain.StorageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totalSize, compressedSize int64
	for _, doc := range m.documents {
		totalSize += doc.OriginalSize
		compressedSize += doc.CompressedSize
	}
	return buildStats(len(m.documents), len(m.conversations), totalSize, compressedSize), nil
}

func buildStats(docs, convs int, totalSize, compressedSize int64) domain.StorageStats {
	ratio := 1.0
	if compressedSize > 0 {
		ratio = float64(totalSize) / float64(compressedSize)
	}
	return domain.StorageStats{
		DocumentCount:     docs,
		ConversationCount: convs,
		TotalSizeMB:       float64(totalSize) / (1024 * 1024),
		CompressedSizeMB:  float64(compressedSize) / (1024 * 1024),
		CompressionRatio:  ratio,
		StorageLimitMB:    storageQuotaMB,
		UsagePercent:      float64(compressedSize) / (storageQuotaMB * 1024 * 1024) * 100,
	}
}

func (m *Manager) Close() error { return nil }
