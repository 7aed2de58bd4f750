// Package assistant answers in-game chat messages that mention the agent,
// using a text generation model.
package assistant

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
)

const (
	senderSeparator = "»"

	DefaultHistorySize = 100
	DefaultMaxLines    = 3
	DefaultMaxLineLen  = 230
	DefaultLineGap     = 600 * time.Millisecond
	DefaultTimeout     = 30 * time.Second
)

const DefaultPersona = "You are a player on a Minecraft survival server who farms for a living. " +
	"Answer like a normal player in casual chat style, short and to the point, plain text only, one or two sentences. " +
	"You only know what is in the chat log."

var (
	userPrefix = regexp.MustCompile(`^<[^>]+>\s*`)
	rankPrefix = regexp.MustCompile(`^\[[^\]]+\]\s*`)
	afterName  = regexp.MustCompile(`^[:,\-]\s*`)
)

type Sender interface {
	Chat(line string) error
}

type Options struct {
	Name        string
	Persona     string
	HistorySize int
	MaxLines    int
	MaxLineLen  int
	LineGap     time.Duration
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Persona == "" {
		o.Persona = DefaultPersona
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.MaxLines <= 0 {
		o.MaxLines = DefaultMaxLines
	}
	if o.MaxLineLen <= 0 {
		o.MaxLineLen = DefaultMaxLineLen
	}
	if o.LineGap <= 0 {
		o.LineGap = DefaultLineGap
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Assistant keeps a rolling chat history and replies to mentions, one
// generation at a time. It belongs to a single connection.
type Assistant struct {
	opts   Options
	gen    Generator
	out    Sender
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	history []string

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options, gen Generator, out Sender, clk clock.Clock, logger *slog.Logger) *Assistant {
	ctx, cancel := context.WithCancel(context.Background())
	return &Assistant{
		opts:   opts.withDefaults(),
		gen:    gen,
		out:    out,
		clock:  clk,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// HandleLine records line and, when it addresses the agent and no reply is
// in flight, starts generating one. It never blocks.
func (a *Assistant) HandleLine(line string) {
	if a.ctx.Err() != nil {
		return
	}
	sender, text := Flatten(line)
	if text == "" {
		return
	}

	entry := text
	if sender != "" {
		entry = sender + ": " + text
	}
	history := a.remember(entry)

	prompt, ok := ExtractPrompt(a.opts.Name, sender, text)
	if !ok {
		return
	}
	if !a.busy.CompareAndSwap(false, true) {
		a.logger.Debug("Assistant busy, ignoring mention", slog.String("sender", sender))
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Store(false)
		a.reply(sender, text, prompt, history)
	}()
}

func (a *Assistant) remember(entry string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, entry)
	if over := len(a.history) - a.opts.HistorySize; over > 0 {
		a.history = append([]string(nil), a.history[over:]...)
	}
	return append([]string(nil), a.history...)
}

func (a *Assistant) reply(sender, message, prompt string, history []string) {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.Timeout)
	defer cancel()

	a.logger.Info("Generating chat reply", slog.String("sender", sender), slog.String("prompt", prompt))
	text, err := a.gen.Generate(ctx, a.buildPrompt(message, prompt, history))
	if err != nil {
		a.logger.Warn("Chat reply generation failed", slog.Any("error", err))
		return
	}

	for i, line := range SplitReply(text, a.opts.MaxLines, a.opts.MaxLineLen) {
		if i > 0 {
			select {
			case <-a.clock.After(a.opts.LineGap):
			case <-a.ctx.Done():
				return
			}
		}
		if err := a.out.Chat(line); err != nil {
			a.logger.Warn("Failed to send chat reply", slog.Any("error", err))
			return
		}
	}
}

func (a *Assistant) buildPrompt(message, prompt string, history []string) string {
	var sb strings.Builder
	sb.WriteString(a.opts.Persona)
	sb.WriteString("\nYou are " + a.opts.Name + ".\n\n")
	sb.WriteString("Chat log since you joined:\n")
	sb.WriteString(strings.Join(history, "\n"))
	sb.WriteString("\n\nThe latest message addressed to you is:\n")
	sb.WriteString(message)
	sb.WriteString("\n\nRespond only to that message and do not repeat the chat log. Use the log for context when the question is unclear.\n")
	sb.WriteString("Player question: " + prompt)
	return sb.String()
}

// Dispose cancels any reply in flight and waits for it to stop.
func (a *Assistant) Dispose() {
	a.cancel()
	a.wg.Wait()
}

// Busy reports whether a reply is being generated or sent.
func (a *Assistant) Busy() bool {
	return a.busy.Load()
}
