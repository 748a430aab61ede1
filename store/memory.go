package store

import (
	"context"
	"slices"
	"sync"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
}

// NewMemoryStore returns the in-process store
func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	id := chatmodel.GetChatID(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil || id == "" {
		return nil
	}
	return slices.Clone(m.storage[id])
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	id, err := chatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	list := append(m.storage[id], msgs...)
	if len(list) > MaxMessages {
		list = slices.Clone(list[len(list)-MaxMessages:])
	}
	m.storage[id] = list
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	id, err := chatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, id)
	}
	return nil
}
