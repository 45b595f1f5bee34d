package telegram

import (
	"context"
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cloudx/internal/chat"
	"cloudx/internal/llm"
)

const (
	startCmd = "start"
	resetCmd = "reset"
)

type Turner interface {
	Turn(ctx context.Context, token, message string) (chat.Reply, error)
}

// sender is the slice of the Bot API used for replies; tests swap it out.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot is a Telegram front-end. Each chat is bound to one session token;
// /reset drops the binding so the next message starts a fresh session.
type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	chat      Turner
	parseMode string
	logger    *zap.Logger

	mu     sync.Mutex
	tokens map[int64]string
}

func New(botToken string, chat Turner, parseMode string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:       api,
		s:         api,
		chat:      chat,
		parseMode: parseMode,
		logger:    logger,
		tokens:    make(map[int64]string),
	}, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case startCmd:
			b.sendMessage(chatID, "Hey! I'm CloudX. Ask me anything, /reset starts over.")
		case resetCmd:
			b.forget(chatID)
			b.sendMessage(chatID, "Context reset.")
		default:
			b.sendMessage(chatID, "Unknown command.")
		}
		return
	}

	reply, err := b.chat.Turn(ctx, b.token(chatID), msg.Text)
	b.remember(chatID, reply.SessionToken)

	var ce *llm.CompletionError
	switch {
	case err == nil:
		b.sendMessage(chatID, reply.Text)
	case errors.Is(err, chat.ErrRateLimited):
		b.sendMessage(chatID, "Rate limit reached. Try again later.")
	case errors.Is(err, chat.ErrEmptyMessage):
		b.sendMessage(chatID, "Say something and I'll answer.")
	case errors.As(err, &ce):
		b.logger.Error("completion failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendMessage(chatID, "Sorry, the model is unavailable right now.")
	default:
		b.logger.Error("turn failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendMessage(chatID, "Sorry, something went wrong.")
	}
}

func (b *Bot) token(chatID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[chatID]
}

func (b *Bot) remember(chatID int64, token string) {
	if token == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[chatID] = token
}

func (b *Bot) forget(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, chatID)
}

// sendMessage retries without a parse mode when Telegram rejects the
// formatting of model output.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode
	if _, err := b.s.Send(msg); err != nil {
		if b.parseMode == "" {
			b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		msg.ParseMode = ""
		if _, err := b.s.Send(msg); err != nil {
			b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}
