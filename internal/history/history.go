// Package history records chat turns as (role, content) pairs.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rag-assistant/internal/models"
)

type Message struct {
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Recorder persists the conversation transcript.
type Recorder interface {
	Record(ctx context.Context, role, content string) error
	// Recent returns up to limit messages, oldest first. limit <= 0 returns all.
	Recent(ctx context.Context, limit int) ([]Message, error)
	Clear(ctx context.Context) error
}

func validRole(role string) error {
	if role != models.RoleUser && role != models.RoleAssistant {
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

type MemoryRecorder struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{now: time.Now}
}

func (m *MemoryRecorder) Record(_ context.Context, role, content string) error {
	if err := validRole(role); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Role: role, Content: content, CreatedAt: m.now()})
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

func (m *MemoryRecorder) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	return nil
}
