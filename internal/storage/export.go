package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"docchat/internal/domain"
	"docchat/internal/metrics"
)

const snapshotVersion = "2.0.0"

// Snapshot is the portable on-disk form of the whole store.
type Snapshot struct {
	Documents     map[string]*domain.StoredDocument     `json:"documents"`
	Conversations map[string]*domain.StoredConversation `json:"conversations"`
	ExportDate    time.Time                             `json:"export_date"`
	Version       string                                `json:"version"`
}

// ExportJSON serializes every document and conversation into a single
// versioned JSON payload.
func (m *Manager) ExportJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Documents:     m.documents,
		Conversations: m.conversations,
		ExportDate:    time.Now(),
		Version:       snapshotVersion,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	return data, nil
}

// ImportJSON replaces the store contents with a previously exported
// snapshot.
func (m *Manager) ImportJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.documents = snap.Documents
	if m.documents == nil {
		m.documents = make(map[string]*domain.StoredDocument)
	}
	m.conversations = snap.Conversations
	if m.conversations == nil {
		m.conversations = make(map[string]*domain.StoredConversation)
	}
	metrics.StoredDocuments.Set(int64(len(m.documents)))
	m.logger.Info("snapshot imported", "documents", len(m.documents), "conversations", len(m.conversations), "version", snap.Version)
	return nil
}
