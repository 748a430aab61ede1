// Package store keeps the conversation history of a chat across queries.
// The chat ID is taken from the chatmodel.ChatContext of the context.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "store")

// MaxMessages is the number of the most recent messages kept per chat
const MaxMessages = 50

// ErrInvalidChatContext is returned when the context has no chat ID
var ErrInvalidChatContext = errors.New("invalid chat context")

// MessageStore keeps the messages of a chat
type MessageStore interface {
	// Messages returns the messages of the chat in the order they were added
	Messages(ctx context.Context) []llms.Message
	// Add appends the messages to the chat
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the chat
	Reset(ctx context.Context) error
}

func chatID(ctx context.Context) (string, error) {
	id := chatmodel.GetChatID(ctx)
	if id == "" {
		return "", errors.WithStack(ErrInvalidChatContext)
	}
	return id, nil
}
