// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	Value  []byte
	Expiry time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on access and by Set.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	if ok && m.now().Before(entry.Expiry) {
		value := entry.Value
		m.mu.RUnlock()
		return value, true, nil
	}
	m.mu.RUnlock()

	if ok {
		m.mu.Lock()
		if current, exists := m.entries[key]; exists && !m.now().Before(current.Expiry) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
	return nil, false, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, entry := range m.entries {
		if !now.Before(entry.Expiry) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{Value: stored, Expiry: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}
