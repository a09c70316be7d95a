// Package bot wires listeners to the Discord gateway.
//
// The gateway itself is github.com/bwmarrin/discordgo; this package only
// turns its MessageCreate events into Message values, fans them out to the
// registered listeners and gives them a rate-limited way to answer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Message is a chat message as seen by listeners.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorIsBot bool
	Content     string
}

// Sender posts a message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, content string) error
}

// Listener receives every message the bot sees.
type Listener interface {
	OnMessage(ctx context.Context, s Sender, m Message)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, s Sender, m Message)

func (f ListenerFunc) OnMessage(ctx context.Context, s Sender, m Message) {
	f(ctx, s, m)
}

// Bot is a Discord bot: a token, the gateway intents it asks for and the
// listeners that handle its messages.
type Bot struct {
	token string

	mu        sync.Mutex
	intents   discordgo.Intent
	listeners []Listener
	limit     rate.Limit
	session   *discordgo.Session
}

// New creates a bot. IntentsGuildMembers is always requested.
func New(token string, intents discordgo.Intent, listeners ...Listener) *Bot {
	return &Bot{
		token:     token,
		intents:   intents | discordgo.IntentsGuildMembers,
		listeners: append([]Listener(nil), listeners...),
		limit:     rate.Limit(1),
	}
}

// AddListener registers l. Listeners added after Start are still called.
func (b *Bot) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// AddIntent adds an intent, reporting whether it was new. It has no effect
// on a running session.
func (b *Bot) AddIntent(i discordgo.Intent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intents&i == i {
		return false
	}
	b.intents |= i
	return true
}

// Intents returns the requested gateway intents.
func (b *Bot) Intents() discordgo.Intent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intents
}

// SetReplyRate limits outgoing messages to perSecond, with a burst of one.
func (b *Bot) SetReplyRate(perSecond float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = rate.Limit(perSecond)
}

// Start connects to the gateway and returns once the session is open.
// Handlers run until Stop; ctx bounds the replies they send.
func (b *Bot) Start(ctx context.Context) error {
	if strings.TrimSpace(b.token) == "" {
		return errors.New("bot token is empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return errors.New("bot already started")
	}

	s, err := discordgo.New("Bot " + b.token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = b.intents

	sender := newLimitedSender(b.limit, func(channelID, content string) error {
		_, err := s.ChannelMessageSend(channelID, content)
		return err
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("bot logged in", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.dispatch(ctx, sender, messageFromEvent(m))
	})

	slog.Info("connecting bot", "intents", int(b.intents))
	if err := s.Open(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	b.session = s
	return nil
}

// Stop closes the gateway session. Stopping a bot that is not running is a no-op.
func (b *Bot) Stop() error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (b *Bot) dispatch(ctx context.Context, s Sender, m Message) {
	b.mu.Lock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l.OnMessage(ctx, s, m)
	}
}

func messageFromEvent(e *discordgo.MessageCreate) Message {
	if e == nil || e.Message == nil {
		return Message{}
	}
	m := Message{
		ID:        e.ID,
		ChannelID: e.ChannelID,
		GuildID:   e.GuildID,
		Content:   e.Content,
	}
	if e.Author != nil {
		m.AuthorID = e.Author.ID
		m.AuthorIsBot = e.Author.Bot
	}
	return m
}

// limitedSender spaces out sends so a chatty channel cannot push the bot
// into Discord's rate limits.
type limitedSender struct {
	limiter *rate.Limiter
	send    func(channelID, content string) error
}

func newLimitedSender(limit rate.Limit, send func(channelID, content string) error) *limitedSender {
	return &limitedSender{
		limiter: rate.NewLimiter(limit, 1),
		send:    send,
	}
}

func (s *limitedSender) Send(ctx context.Context, channelID, content string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.send(channelID, content); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	return nil
}
