// Package chatmodel provides the chat session of the agent.
// The chat ID keys the retained history and the run statistics of the session.
package chatmodel

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ChatContext is the session of the agent, carried in the context of the queries
type ChatContext interface {
	GetChatID() string
	// AppData returns immutable app data
	AppData() any
	GetMetadata(key string) (value any, ok bool)
	SetMetadata(key string, value any)
	// NextQuery counts a new query of the session and returns its number, starting at 1
	NextQuery() uint32
	// Queries returns the number of queries of the session
	Queries() uint32
}

type session struct {
	id       string
	appData  any
	metadata sync.Map
	queries  atomic.Uint32
}

// NewChatContext returns a session with the chat ID,
// a new ID is generated if chatID is empty
func NewChatContext(chatID string, appData any) ChatContext {
	return &session{
		id:      values.StringsCoalesce(chatID, NewChatID()),
		appData: appData,
	}
}

func (s *session) GetChatID() string {
	return s.id
}

func (s *session) AppData() any {
	return s.appData
}

func (s *session) GetMetadata(key string) (any, bool) {
	return s.metadata.Load(key)
}

func (s *session) SetMetadata(key string, value any) {
	s.metadata.Store(key, value)
}

func (s *session) NextQuery() uint32 {
	return s.queries.Add(1)
}

func (s *session) Queries() uint32 {
	return s.queries.Load()
}

type contextKey struct{}

// WithChatContext returns a new context with the session
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, contextKey{}, chatCtx)
}

// GetChatContext returns the session of the context, or nil
func GetChatContext(ctx context.Context) ChatContext {
	chatCtx, _ := ctx.Value(contextKey{}).(ChatContext)
	return chatCtx
}

// GetChatID returns the chat ID of the session in the context,
// or empty string if the context has no session
func GetChatID(ctx context.Context) string {
	if chatCtx := GetChatContext(ctx); chatCtx != nil {
		return chatCtx.GetChatID()
	}
	return ""
}

// NewChatID returns a new chat ID from the flake ID generator
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
