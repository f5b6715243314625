package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore хранит сессии в памяти процесса.
// Сессии сериализуются в JSON, чтобы вызывающий код не делил с хранилищем указатели.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore создает хранилище в памяти. ttl <= 0 означает бессрочное хранение.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get возвращает сессию чата
func (m *MemoryStore) Get(_ context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.entries[chatID]
	if ok && m.ttl > 0 && m.now().After(entry.expiresAt) {
		delete(m.entries, chatID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return New(chatID), nil
	}

	var s Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// Save сохраняет сессию чата
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	s.UpdatedAt = m.now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	m.mu.Lock()
	m.entries[s.ChatID] = memoryEntry{data: data, expiresAt: s.UpdatedAt.Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Delete удаляет сессию чата
func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.entries, chatID)
	m.mu.Unlock()
	return nil
}

// Len количество хранимых сессий
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
