// Package mcpserver exposes the chat orchestrator and the memory store as
// MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"cloudx/internal/chat"
	"cloudx/internal/memory"
)

const defaultRecallK = 3

type Turner interface {
	Turn(ctx context.Context, token, message string) (chat.Reply, error)
}

type MemoryStore interface {
	Append(content, description string) (memory.Entry, error)
	Search(query string, topK int) iter.Seq[string]
}

type ChatParams struct {
	Message      string `json:"message" mcp:"user message to answer"`
	SessionToken string `json:"session_token,omitempty" mcp:"token returned by a previous chat call; empty starts a new session"`
}

type RememberParams struct {
	Content     string `json:"content" mcp:"text to store in long-term memory"`
	Description string `json:"description,omitempty" mcp:"short label for the entry"`
}

type RecallParams struct {
	Query string `json:"query" mcp:"words to match against stored memory"`
	K     int    `json:"k,omitempty" mcp:"maximum number of entries to return (default 3)"`
}

type Handlers struct {
	chat   Turner
	memory MemoryStore
	logger *zap.Logger
}

func NewHandlers(chat Turner, memory MemoryStore, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{chat: chat, memory: memory, logger: logger}
}

// NewServer registers the chat, remember and recall tools.
func NewServer(h *Handlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "cloudx-mcp",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Sends a message to the CloudX assistant and returns its answer with the session token",
	}, h.Chat)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Appends an entry to the assistant's long-term memory",
	}, h.Remember)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Returns memory entries that share words with the query, best match first",
	}, h.Recall)
	return server
}

func (h *Handlers) Chat(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ChatParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	reply, err := h.chat.Turn(ctx, args.SessionToken, args.Message)
	if err != nil {
		h.logger.Warn("mcp chat failed", zap.Error(err))
		msg := "turn failed: " + err.Error()
		switch {
		case errors.Is(err, chat.ErrRateLimited):
			msg = "Rate limit reached. Try again later."
		case errors.Is(err, chat.ErrEmptyMessage):
			msg = "Empty message"
		}
		return errorResult(fmt.Sprintf("%s\nsession_token: %s", msg, reply.SessionToken)), nil
	}
	return textResult(fmt.Sprintf("%s\n\nsession_token: %s", reply.Text, reply.SessionToken)), nil
}

func (h *Handlers) Remember(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[RememberParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	entry, err := h.memory.Append(args.Content, args.Description)
	if err != nil {
		h.logger.Warn("mcp remember failed", zap.Error(err))
		return errorResult("failed to store memory: " + err.Error()), nil
	}
	return textResult("stored " + entry.ID), nil
}

func (h *Handlers) Recall(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[RecallParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	k := args.K
	if k <= 0 {
		k = defaultRecallK
	}
	var b strings.Builder
	n := 0
	for content := range h.memory.Search(args.Query, k) {
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, content)
	}
	if n == 0 {
		return textResult("no matching memory"), nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
