package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pagechat/internal/models"
)

// RecordStore persists one StoredChatData per page URL.
type RecordStore interface {
	Get(ctx context.Context, url string) (models.StoredChatData, bool, error)
	Put(ctx context.Context, data models.StoredChatData) error
}

// RecordKey is the key-value key for a page's record.
func RecordKey(url string) string {
	return "chat_" + url
}

// MemoryRecords keeps records as encoded JSON so callers never share slices
// with the store.
type MemoryRecords struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{data: map[string][]byte{}}
}

var _ RecordStore = (*MemoryRecords)(nil)

func (m *MemoryRecords) Get(_ context.Context, url string) (models.StoredChatData, bool, error) {
	m.mu.RLock()
	raw, ok := m.data[RecordKey(url)]
	m.mu.RUnlock()
	if !ok {
		return models.StoredChatData{}, false, nil
	}
	var d models.StoredChatData
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.StoredChatData{}, false, fmt.Errorf("decode chat record: %w", err)
	}
	return d, true, nil
}

func (m *MemoryRecords) Put(_ context.Context, d models.StoredChatData) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}
	m.mu.Lock()
	m.data[RecordKey(d.URL)] = raw
	m.mu.Unlock()
	return nil
}
