// Package bot is the Telegram transport: it receives raw utterances and
// sends replies, leaving understanding and execution to its collaborators.
package bot

import (
	"context"
	"encoding/json"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ledgerbot/internal/log"
	"ledgerbot/internal/nlp"
	"ledgerbot/internal/service"
)

// CommandResolver turns an utterance into a typed command.
type CommandResolver interface {
	Resolve(ctx context.Context, utterance string) (nlp.Command, error)
}

// CommandDispatcher executes a command for a user.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, userID string, cmd nlp.Command) (service.Reply, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	resolver   CommandResolver
	dispatcher CommandDispatcher
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock serializes one user's messages. refs counts waiters plus the
// holder so the entry can be dropped once nobody needs it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func New(token string, resolver CommandResolver, dispatcher CommandDispatcher, logger *log.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newWithAPI(api, resolver, dispatcher, logger), nil
}

func newWithAPI(api *tgbotapi.BotAPI, resolver CommandResolver, dispatcher CommandDispatcher, logger *log.Logger) *Bot {
	return &Bot{
		api:        api,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger.WithComponent(log.ComponentBot),
		locks:      make(map[string]*userLock),
	}
}

// Start runs the bot in long-polling mode until ctx ends. Each update is
// handled on its own goroutine; messages from the same user are serialized
// so "delete the last one" always sees the previous message's effect.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.InfoContext(ctx, "Bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.InfoContext(ctx, "Bot stopped", "reason", ctx.Err())
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// HandleWebhook processes one webhook-delivered update. Used instead of
// Start when running behind an HTTPS endpoint.
func (b *Bot) HandleWebhook(ctx context.Context, body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return err
	}
	b.handleUpdate(ctx, update)
	return nil
}

// lockUser blocks until the caller holds the user's lock. Every lockUser
// must be paired with unlockUser, which removes the map entry once the last
// holder releases it, keeping the map bounded by concurrent users rather
// than every user id ever seen.
func (b *Bot) lockUser(userID string) {
	b.mu.Lock()
	l, ok := b.locks[userID]
	if !ok {
		l = &userLock{}
		b.locks[userID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
}

func (b *Bot) unlockUser(userID string) {
	b.mu.Lock()
	l := b.locks[userID]
	l.refs--
	if l.refs == 0 {
		delete(b.locks, userID)
	}
	b.mu.Unlock()

	l.mu.Unlock()
}
