package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Counter stores one decimal counter per member. *store.Table satisfies it.
type Counter interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
}

// CocoaListener answers the cocoa command and counts how often each member
// writes something matching the cocoa pattern.
type CocoaListener struct {
	counter Counter
	command string
	reply   string
	pattern *regexp.Regexp

	mu sync.Mutex // serializes read-modify-write of counters
}

// NewCocoaListener returns a listener replying reply to command and counting
// pattern matches into counter.
func NewCocoaListener(counter Counter, command, reply string, pattern *regexp.Regexp) *CocoaListener {
	return &CocoaListener{
		counter: counter,
		command: command,
		reply:   reply,
		pattern: pattern,
	}
}

func (l *CocoaListener) OnMessage(ctx context.Context, s Sender, m Message) {
	if m.AuthorIsBot {
		return
	}
	log := slog.With("channel", m.ChannelID, "member", m.AuthorID)

	switch content := strings.TrimSpace(m.Content); content {
	case l.command:
		log.Debug("command", "command", content)
		if err := s.Send(ctx, m.ChannelID, l.reply); err != nil {
			log.Error("failed to reply", "err", err)
		}
	case l.command + " count":
		log.Debug("command", "command", content)
		n, err := l.Count(m.AuthorID)
		if err != nil {
			log.Error("failed to read counter", "err", err)
			return
		}
		if err := s.Send(ctx, m.ChannelID, fmt.Sprintf("<@%s> has said cocoa %d times.", m.AuthorID, n)); err != nil {
			log.Error("failed to reply", "err", err)
		}
	default:
		n := len(l.pattern.FindAllStringIndex(m.Content, -1))
		if n == 0 {
			return
		}
		total, err := l.add(m.AuthorID, n)
		if err != nil {
			log.Error("failed to update counter", "err", err)
			return
		}
		log.Debug("counted", "matches", n, "total", total)
	}
}

// Count returns the stored counter of member, 0 when there is none.
func (l *CocoaListener) Count(member string) (int, error) {
	v, ok, err := l.counter.Get(member)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("counter of %s: %w", member, err)
	}
	return n, nil
}

func (l *CocoaListener) add(member string, n int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok, err := l.counter.Get(member)
	if err != nil {
		return 0, err
	}
	current := 0
	if ok {
		if current, err = strconv.Atoi(v); err != nil {
			slog.Warn("resetting unreadable counter", "member", member, "value", v, "err", err)
			current = 0
		}
	}
	total := current + n
	if err := l.counter.Put(member, strconv.Itoa(total)); err != nil {
		return 0, err
	}
	return total, nil
}
